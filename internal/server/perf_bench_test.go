package server

import (
	"context"
	"testing"

	"fileshare/internal/store"
)

func BenchmarkFileServiceListPrefix(b *testing.B) {
	service := newPerfFileService(b, 2000)
	ctx := context.Background()
	filter := store.FileFilter{NamePrefix: "report", Limit: 75}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		files, err := service.List(ctx, filter)
		if err != nil {
			b.Fatalf("list prefix: %v", err)
		}
		if len(files) == 0 {
			b.Fatal("list prefix returned no results")
		}
	}
}

func BenchmarkFileServiceStats(b *testing.B) {
	service := newPerfFileService(b, 2000)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := service.Stats(ctx); err != nil {
			b.Fatalf("stats: %v", err)
		}
	}
}

func BenchmarkFileServiceUploadCollidingName(b *testing.B) {
	service := newPerfFileService(b, 0)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := service.Upload(ctx, perfUpload("same.txt", i)); err != nil {
			b.Fatalf("upload %d: %v", i, err)
		}
	}
}
