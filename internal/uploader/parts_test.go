package uploader

import "testing"

func TestSplitPartsCoversFileExactly(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		size  int64
		count int
	}{
		{name: "25MiB in 3", size: 25 << 20, count: 3},
		{name: "just over threshold in 3", size: (20 << 20) + 1, count: 3},
		{name: "exact multiple", size: 30 << 20, count: 3},
		{name: "tiny remainder", size: (10 << 20) + 1, count: 2},
		{name: "single part", size: 123, count: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			parts := splitParts(tt.size, tt.count)
			if len(parts) == 0 {
				t.Fatal("no parts")
			}
			var pos int64
			for i, p := range parts {
				if p.Number != i+1 {
					t.Fatalf("part %d numbered %d", i, p.Number)
				}
				if p.Start != pos {
					t.Fatalf("part %d starts at %d, want %d (gap or overlap)", p.Number, p.Start, pos)
				}
				if p.End <= p.Start {
					t.Fatalf("part %d has empty range [%d,%d)", p.Number, p.Start, p.End)
				}
				pos = p.End
			}
			if pos != tt.size {
				t.Fatalf("parts cover [0,%d), want [0,%d)", pos, tt.size)
			}
		})
	}
}

func TestSplitPartsDegenerate(t *testing.T) {
	t.Parallel()
	if got := splitParts(0, 3); got != nil {
		t.Fatalf("expected nil for empty file, got %v", got)
	}
	if got := splitParts(100, 0); got != nil {
		t.Fatalf("expected nil for zero count, got %v", got)
	}
}

func TestResolveContentType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		explicit string
		fileName string
		want     string
	}{
		{name: "explicit wins", explicit: "image/png", fileName: "x.jpg", want: "image/png"},
		{name: "inferred from extension", fileName: "report.pdf", want: "application/pdf"},
		{name: "params stripped", explicit: "text/plain; charset=utf-8", fileName: "a.txt", want: "text/plain"},
		{name: "unknown extension falls back", fileName: "blob.xyzunknown", want: "application/octet-stream"},
		{name: "no name falls back", want: "application/octet-stream"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveContentType(tt.explicit, tt.fileName); got != tt.want {
				t.Fatalf("resolveContentType(%q, %q) = %q, want %q", tt.explicit, tt.fileName, got, tt.want)
			}
		})
	}
}
