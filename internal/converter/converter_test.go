package converter

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tt-rates-dataset/internal/extractor"
)

func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable on windows")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func sampleDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "2024-01-02-a.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConvertText(t *testing.T) {
	tool := fakeTool(t, `[ "$2" = "-" ] || exit 9
cat "$1"`)
	conv := New(Options{Format: extractor.FormatText, PDFToTextBin: tool, Timeout: 5 * time.Second}, zerolog.Nop())

	out, format, err := conv.Convert(context.Background(), sampleDoc(t, "USD/INR 82.50"))
	require.NoError(t, err)
	assert.Equal(t, extractor.FormatText, format)
	assert.Equal(t, "USD/INR 82.50", out)
}

func TestConvertTable(t *testing.T) {
	tool := fakeTool(t, `[ "$1" = "-jar" ] || exit 9
[ "$3" = "-f" ] && [ "$4" = "CSV" ] || exit 8
for a; do last=$a; done
cat "$last"`)
	conv := New(Options{Format: extractor.FormatTable, JavaBin: tool, TabulaJar: "tabula.jar"}, zerolog.Nop())

	out, format, err := conv.Convert(context.Background(), sampleDoc(t, "Currency,TT Buy\nUSD,82.5\n"))
	require.NoError(t, err)
	assert.Equal(t, extractor.FormatTable, format)
	assert.Equal(t, "Currency,TT Buy\nUSD,82.5\n", out)
}

func TestConvertTableRequiresJar(t *testing.T) {
	conv := New(Options{Format: extractor.FormatTable}, zerolog.Nop())
	_, _, err := conv.Convert(context.Background(), "doc.pdf")
	assert.Error(t, err)
}

func TestConvertToolFailure(t *testing.T) {
	tool := fakeTool(t, `echo "Syntax Error: broken xref" >&2
exit 3`)
	conv := New(Options{PDFToTextBin: tool}, zerolog.Nop())

	_, _, err := conv.Convert(context.Background(), sampleDoc(t, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken xref")
}

func TestConvertTimeout(t *testing.T) {
	tool := fakeTool(t, `exec sleep 5`)
	conv := New(Options{PDFToTextBin: tool, Timeout: 50 * time.Millisecond}, zerolog.Nop())

	_, _, err := conv.Convert(context.Background(), sampleDoc(t, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConvertOutputCap(t *testing.T) {
	tool := fakeTool(t, `head -c 11000000 /dev/zero`)
	conv := New(Options{PDFToTextBin: tool, Timeout: 10 * time.Second}, zerolog.Nop())

	_, _, err := conv.Convert(context.Background(), sampleDoc(t, "x"))
	assert.ErrorIs(t, err, ErrOutputTooLarge)
}

func TestCappedBuffer(t *testing.T) {
	buf := &cappedBuffer{limit: 4}
	n, err := buf.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.True(t, buf.overflow)
	assert.Equal(t, "abcd", buf.buf.String())
}
