// Package files implements the file transfer surface of the catalog: upload
// into the upload/ namespace, the upload→books move, downloads, and the
// cached cover icons.
package files

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/filestore"
	"github.com/mbs4/mbs4/pkg/formats"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"golang.org/x/image/draw"
)

// iconSize bounds both icon dimensions; aspect is preserved inside the box.
const iconSize = 128

// sniffLen is how many leading bytes feed content-type detection.
const sniffLen = 3072

// UploadInfo is returned by the upload and move endpoints. FinalPath is the
// full store path the file ended up under.
type UploadInfo struct {
	FinalPath    string  `json:"final_path"`
	Size         int64   `json:"size"`
	Hash         string  `json:"hash"`
	OriginalName *string `json:"original_name,omitempty"`
}

// Service implements uploads, moves, downloads, and icon rendering over the
// file store.
type Service struct {
	db            *bun.DB
	store         *filestore.Store
	formatService *formats.Service
}

// NewService creates a new file service.
func NewService(db *bun.DB, store *filestore.Store) *Service {
	return &Service{
		db:            db,
		store:         store,
		formatService: formats.NewService(db),
	}
}

// UploadOptions are the options for storing an uploaded payload.
type UploadOptions struct {
	// OriginalName is the client-side file name, when known.
	OriginalName string
	// ContentType is the declared media type, when known.
	ContentType string
	Body        io.Reader
}

// Upload streams a payload into the upload namespace under a minted name
// carrying the resolved format's extension. The format resolves by the
// original name's extension first, then the declared content type, then
// content sniffing; a payload no format claims is rejected.
func (s *Service) Upload(ctx context.Context, opts UploadOptions) (*UploadInfo, error) {
	format, body, err := s.resolveFormat(ctx, opts)
	if err != nil {
		return nil, err
	}

	dest, err := storepath.UploadPath(format.Extension)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	info, err := s.store.StoreStream(ctx, dest, body)
	if err != nil {
		return nil, err
	}

	out := &UploadInfo{
		FinalPath: info.FinalPath.String(),
		Size:      info.Size,
		Hash:      info.Hash,
	}
	if opts.OriginalName != "" {
		out.OriginalName = &opts.OriginalName
	}
	return out, nil
}

// MoveUpload moves an uploaded file into the books namespace at the given
// path, diverting to a collision-free name when the target exists.
func (s *Service) MoveUpload(ctx context.Context, from, to string) (*UploadInfo, error) {
	src, err := uploadPath(from)
	if err != nil {
		return nil, err
	}

	dst, err := storepath.New(to)
	if err != nil {
		return nil, errcodes.ValidationError("Target path is not a valid store path.")
	}
	if !dst.HasPrefix(storepath.PrefixBooks) {
		return nil, errcodes.ValidationError("Target path must be inside the books namespace.")
	}

	final, err := s.store.Rename(ctx, src, dst)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrNotAFile) {
			return nil, errcodes.NotFound("Uploaded file")
		}
		if errors.Is(err, filestore.ErrPathConflict) {
			return nil, errcodes.PathConflict(dst.String())
		}
		return nil, err
	}

	info, err := s.store.Describe(ctx, final)
	if err != nil {
		return nil, err
	}

	return &UploadInfo{
		FinalPath: info.FinalPath.String(),
		Size:      info.Size,
		Hash:      info.Hash,
	}, nil
}

// StoredFile resolves a stored path to its local filesystem path and the
// content type to serve it with. The type comes from the matching format
// row, falling back to content detection, then octet-stream.
func (s *Service) StoredFile(ctx context.Context, p storepath.Path) (string, string, error) {
	local := s.store.LocalPath(p)
	stat, err := os.Stat(local)
	if err != nil || stat.IsDir() {
		return "", "", errcodes.NotFound("File")
	}

	contentType := ""
	if ext := p.Ext(); ext != "" {
		format, err := s.formatService.RetrieveByExtension(ctx, ext)
		switch {
		case err == nil:
			contentType = format.MimeType
		case !isNotFound(err):
			return "", "", err
		}
	}
	if contentType == "" {
		// DetectFile reports application/octet-stream for unknown content,
		// which is exactly the final fallback.
		if mtype, err := mimetype.DetectFile(local); err == nil {
			contentType = mtype.String()
		} else {
			contentType = "application/octet-stream"
		}
	}

	return local, contentType, nil
}

// Icon returns the local path of the ebook's 128x128 cover icon, rendering
// and caching it under icons/ on first use.
func (s *Service) Icon(ctx context.Context, id int64) (string, error) {
	iconPath, err := storepath.New(fmt.Sprintf("%s/%d.png", storepath.PrefixIcons, id))
	if err != nil {
		return "", errors.WithStack(err)
	}
	if s.store.Exists(ctx, iconPath) {
		return s.store.LocalPath(iconPath), nil
	}

	ebook := new(models.Ebook)
	err = s.db.
		NewSelect().
		Model(ebook).
		Column("e.id", "e.cover").
		Where("e.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errcodes.NotFound("Ebook")
		}
		return "", errors.WithStack(err)
	}
	if ebook.Cover == nil {
		return "", errcodes.NotFound("Cover")
	}

	coverPath, err := storepath.New(storepath.PrefixBooks.String() + "/" + *ebook.Cover)
	if err != nil {
		return "", errcodes.NotFound("Cover")
	}
	f, err := os.Open(s.store.LocalPath(coverPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errcodes.NotFound("Cover")
		}
		return "", errors.WithStack(err)
	}
	defer f.Close()

	srcImg, _, err := image.Decode(f)
	if err != nil {
		return "", errors.WithStack(err)
	}

	srcBounds := srcImg.Bounds()
	targetW, targetH := fitWithin(srcBounds.Dx(), srcBounds.Dy(), iconSize)
	dstImg := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.BiLinear.Scale(dstImg, dstImg.Bounds(), srcImg, srcBounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dstImg); err != nil {
		return "", errors.WithStack(err)
	}
	if _, err := s.store.StoreDataOverwrite(ctx, iconPath, buf.Bytes()); err != nil {
		return "", err
	}

	return s.store.LocalPath(iconPath), nil
}

// resolveFormat finds the format row for an upload. Sniffing consumes a
// prefix of the body, so the returned reader replays it.
func (s *Service) resolveFormat(ctx context.Context, opts UploadOptions) (*models.Format, io.Reader, error) {
	if ext := path.Ext(opts.OriginalName); ext != "" {
		format, err := s.formatService.RetrieveByExtension(ctx, ext)
		if err == nil {
			return format, opts.Body, nil
		}
		if !isNotFound(err) {
			return nil, nil, err
		}
	}

	if opts.ContentType != "" {
		format, err := s.formatService.RetrieveByMimeType(ctx, opts.ContentType)
		if err == nil {
			return format, opts.Body, nil
		}
		if !isNotFound(err) {
			return nil, nil, err
		}
	}

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(opts.Body, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, errors.WithStack(err)
	}
	buf = buf[:n]
	body := io.MultiReader(bytes.NewReader(buf), opts.Body)

	mtype := mimetype.Detect(buf)
	format, err := s.formatService.RetrieveByMimeType(ctx, mtype.String())
	if err == nil {
		return format, body, nil
	}
	if !isNotFound(err) {
		return nil, nil, err
	}
	if ext := mtype.Extension(); ext != "" {
		format, err := s.formatService.RetrieveByExtension(ctx, ext)
		if err == nil {
			return format, body, nil
		}
		if !isNotFound(err) {
			return nil, nil, err
		}
	}

	return nil, nil, errcodes.UnsupportedMediaType()
}

// fitWithin scales (srcW, srcH) down to fit a max×max box, preserving
// aspect. Images already inside the box keep their size.
func fitWithin(srcW, srcH, max int) (int, int) {
	if srcW <= max && srcH <= max {
		return srcW, srcH
	}

	ratioW := float64(max) / float64(srcW)
	ratioH := float64(max) / float64(srcH)

	ratio := ratioW
	if ratioH < ratioW {
		ratio = ratioH
	}

	return int(float64(srcW) * ratio), int(float64(srcH) * ratio)
}

func isNotFound(err error) bool {
	var ec *errcodes.Error
	return errors.As(err, &ec) && ec.HTTPCode == 404
}

// uploadPath validates that a client-supplied path is a store path inside the
// upload namespace.
func uploadPath(raw string) (storepath.Path, error) {
	p, err := storepath.New(raw)
	if err != nil {
		return storepath.Path{}, errcodes.ValidationError("File path is not a valid store path.")
	}
	if !p.HasPrefix(storepath.PrefixUpload) {
		return storepath.Path{}, errcodes.ValidationError("File path must be inside the upload namespace.")
	}
	return p, nil
}
