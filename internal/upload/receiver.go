package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/config"
	"github.com/ardhptr21/myits-lapor/internal/media/sniffer"
	"github.com/ardhptr21/myits-lapor/internal/service"
	"github.com/ardhptr21/myits-lapor/internal/storage"
)

const (
	FolderReports    = "reports"
	FolderProgresses = "progresses"
)

const invalidUploadMessage = "Invalid file upload"

// extensions maps each accepted MIME type to the only extension allowed with it.
var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
}

// Receiver validates multipart photos and writes them to the file store.
type Receiver struct {
	store    storage.FileStore
	layout   storage.Layout
	maxFiles int
	maxSize  int64
	now      func() time.Time
	log      zerolog.Logger
}

func NewReceiver(store storage.FileStore, layout storage.Layout, cfg config.UploadConfig, log zerolog.Logger) *Receiver {
	return &Receiver{
		store:    store,
		layout:   layout,
		maxFiles: cfg.MaxFiles,
		maxSize:  cfg.MaxSize,
		now:      time.Now,
		log:      log,
	}
}

func rejected(reason string) error {
	return service.BadRequest(invalidUploadMessage, map[string]string{"photos": reason})
}

// Receive stores every file sent under field into folder and returns their
// record paths (e.g. "uploads/reports/<name>"). Either all files are stored
// or none are: a rejection removes whatever this call already wrote.
func (r *Receiver) Receive(ctx context.Context, form *multipart.Form, field, folder string) ([]string, error) {
	if form == nil {
		return []string{}, nil
	}
	files := form.File[field]
	if len(files) > r.maxFiles {
		return nil, rejected(fmt.Sprintf("At most %d files are allowed", r.maxFiles))
	}

	for _, fh := range files {
		if err := r.check(fh); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		p, err := r.save(ctx, fh, folder)
		if err != nil {
			if rmErr := r.Remove(ctx, paths...); rmErr != nil {
				r.log.Warn().Err(rmErr).Strs("paths", paths).Msg("remove rejected upload failed")
			}
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (r *Receiver) check(fh *multipart.FileHeader) error {
	declared := declaredType(fh)
	ext, ok := extensions[declared]
	if !ok {
		return rejected("Invalid file type")
	}
	if strings.TrimPrefix(strings.ToLower(path.Ext(fh.Filename)), ".") != ext {
		return rejected("File extension does not match MIME type")
	}
	if fh.Size > r.maxSize {
		return rejected("File size exceeds limit")
	}
	return nil
}

func (r *Receiver) save(ctx context.Context, fh *multipart.FileHeader, folder string) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", service.Internal(fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()

	result, head, err := sniffer.Detect(f)
	if err != nil {
		if errors.Is(err, sniffer.ErrUnknownType) {
			return "", rejected("File content does not match MIME type")
		}
		return "", service.Internal(fmt.Errorf("read upload: %w", err))
	}
	if !result.Matches(declaredType(fh)) {
		return "", rejected("File content does not match MIME type")
	}

	key := folder + "/" + r.filename(fh.Filename)
	body := io.MultiReader(bytes.NewReader(head), f)
	if err := r.store.Save(ctx, key, body, fh.Size, result.MIME); err != nil {
		return "", service.Internal(fmt.Errorf("store upload: %w", err))
	}
	return r.layout.Path(key), nil
}

// declaredType is the part's Content-Type without parameters, lowercased.
func declaredType(fh *multipart.FileHeader) string {
	return strings.ToLower(sniffer.MimeTypeFromHTTP(http.Header(fh.Header)))
}

// filename is "<unix millis><random 0..1e9>-<lowercased base name>".
func (r *Receiver) filename(original string) string {
	base := strings.ToLower(path.Base(strings.ReplaceAll(original, "\\", "/")))
	suffix := strconv.FormatInt(r.now().UnixMilli(), 10) + strconv.Itoa(rand.IntN(1e9+1))
	return suffix + "-" + base
}

// Remove deletes the files behind record paths. Missing files are ignored;
// every other failure is collected and returned.
func (r *Receiver) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		key, err := r.layout.Key(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		if err := r.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
