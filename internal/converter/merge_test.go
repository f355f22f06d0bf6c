package converter

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/gen2brain/go-fitz"
	"github.com/stretchr/testify/require"
)

func TestMergePreservesInputOrder(t *testing.T) {
	dir := t.TempDir()

	colors := []color.RGBA{
		{R: 230, A: 255},
		{G: 230, A: 255},
		{B: 230, A: 255},
	}
	inputs := []string{
		writeSolidPDF(t, dir, "first.pdf", colors[0]),
		writeSolidPDF(t, dir, "second.pdf", colors[1]),
		writeSolidPDF(t, dir, "third.pdf", colors[2]),
	}

	out := filepath.Join(dir, "merged.pdf")
	res := MergePDFs(inputs, out)
	require.True(t, res.Success, res.Error)

	n, err := PageCount(out)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// Each page came from a differently colored source, so the page order
	// proves the merge order.
	doc, err := fitz.New(out)
	require.NoError(t, err)
	defer doc.Close()

	for i, want := range colors {
		img, err := doc.ImageDPI(i, 72)
		require.NoError(t, err)
		b := img.Bounds()
		got := img.RGBAAt((b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2)
		require.InDelta(t, want.R, got.R, 25, "page %d red channel", i+1)
		require.InDelta(t, want.G, got.G, 25, "page %d green channel", i+1)
		require.InDelta(t, want.B, got.B, 25, "page %d blue channel", i+1)
	}
}

func TestMergeSingleInput(t *testing.T) {
	dir := t.TempDir()
	in := writeSolidPDF(t, dir, "only.pdf", color.RGBA{R: 100, G: 100, B: 100, A: 255})

	out := filepath.Join(dir, "merged.pdf")
	res := MergePDFs([]string{in}, out)
	require.True(t, res.Success, res.Error)

	n, err := PageCount(out)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMergeRejectsEmptyInputList(t *testing.T) {
	res := MergePDFs(nil, filepath.Join(t.TempDir(), "merged.pdf"))
	require.False(t, res.Success)
	require.Contains(t, res.Error, "no input files")
}

func TestMergeFailsOnBrokenInput(t *testing.T) {
	dir := t.TempDir()
	good := writeSolidPDF(t, dir, "good.pdf", color.RGBA{R: 50, A: 255})
	broken := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("this is not a pdf"), 0o644))

	res := MergePDFs([]string{good, broken}, filepath.Join(dir, "merged.pdf"))
	require.False(t, res.Success)
}
