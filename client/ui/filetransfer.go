package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"neuralchat/client/protocol"

	"github.com/rivo/tview"
)

// progressUploader shows upload progress in the status bar while the
// store receives the blob.
type progressUploader struct {
	inner *protocol.Storage
	app   *App
}

func (u *progressUploader) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) (string, error) {
	name := path.Base(key)
	if i := strings.IndexByte(name, '_'); i >= 0 {
		name = name[i+1:]
	}

	var size int64
	if f, ok := body.(interface{ Stat() (os.FileInfo, error) }); ok {
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
	}

	var sent atomic.Int64
	var lastDraw time.Time
	pr := &progressReader{reader: body, onProgress: func(total int64) {
		sent.Store(total)
		if time.Since(lastDraw) < 200*time.Millisecond {
			return
		}
		lastDraw = time.Now()
		u.app.app.QueueUpdateDraw(func() {
			u.app.showUploadProgress(name, sent.Load(), size)
		})
	}}

	url, err := u.inner.Upload(ctx, bucket, key, pr, contentType)
	u.app.app.QueueUpdateDraw(func() {
		u.app.flashUntil = time.Now()
	})
	return url, err
}

func (a *App) showUploadProgress(name string, sent, size int64) {
	if a.statusBar == nil {
		return
	}
	text := fmt.Sprintf(" Uploading %s: %s ", name, formatFileSize(sent))
	if size > 0 {
		text = fmt.Sprintf(" Uploading %s %s %d%% ", name, buildProgressBar(int(sent*100/size), 20), sent*100/size)
	}
	a.statusBar.SetText(tview.Escape(text))
	a.flashUntil = time.Now().Add(2 * time.Second)
}

// buildProgressBar builds a text progress bar
func buildProgressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := width * percent / 100
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}

// progressReader wraps an io.Reader to track progress
type progressReader struct {
	reader     io.Reader
	total      int64
	onProgress func(int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	pr.total += int64(n)
	if pr.onProgress != nil {
		pr.onProgress(pr.total)
	}
	return
}
