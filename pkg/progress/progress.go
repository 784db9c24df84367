// pkg/progress/progress.go - logs transfer progress for installer downloads.

package progress

import (
	"io"
	"time"

	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// Reader wraps an io.Reader and logs how much has been read, at most once
// per interval and once more at EOF.
type Reader struct {
	reader   io.Reader
	total    int64 // <=0 when the size is unknown
	read     int64
	name     string
	interval time.Duration
	last     time.Time
	now      func() time.Time
	done     bool
}

// NewReader wraps r. total is the expected size, or <=0 if unknown.
func NewReader(r io.Reader, total int64, name string) *Reader {
	return &Reader{
		reader:   r,
		total:    total,
		name:     name,
		interval: 5 * time.Second,
		now:      time.Now,
		last:     time.Now(),
	}
}

// Read implements io.Reader.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.read += int64(n)
	if err == io.EOF && !pr.done {
		pr.done = true
		pr.report()
	} else if n > 0 && pr.now().Sub(pr.last) >= pr.interval {
		pr.report()
	}
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 { return pr.read }

// Percent returns progress in [0,100], or -1 when the size is unknown.
func (pr *Reader) Percent() int {
	if pr.total <= 0 {
		return -1
	}
	pct := int(pr.read * 100 / pr.total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (pr *Reader) report() {
	pr.last = pr.now()
	logging.Debug("Download progress", "file", pr.name, "bytes", pr.read, "total", pr.total, "percent", pr.Percent())
}
