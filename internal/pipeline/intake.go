package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
)

// IntakeDocument is one inbound invoice as received from a source.
type IntakeDocument struct {
	Data      []byte
	Kind      constants.DocumentKind // empty means classify from MimeType/Filename
	RequestID string
	Filename  string
	MimeType  string
}

// Validate checks the document carries bytes and a usable kind. Without an
// explicit Kind the declared media type, or the filename extension when no
// media type is given, must be one the rasterizer reads.
func (d IntakeDocument) Validate() error {
	v := common.NewValidator()
	v.Field("data", d.Data, common.Required)
	switch {
	case d.Kind != "" && !d.Kind.Valid():
		v.Field("kind", string(d.Kind), common.OneOf(string(constants.KindImage), string(constants.KindPaginated)))
	case d.Kind == "" && !constants.IsSupported(d.MimeType, filepath.Ext(d.Filename)):
		v.Field("mime_type", d.MimeType+" "+d.Filename, unsupportedType)
	}
	return v.Err("INVALID_DOCUMENT")
}

func unsupportedType(fieldName string, value interface{}) *common.ValidationError {
	return &common.ValidationError{Field: fieldName, Value: value, Message: "must be a PDF, JPEG or PNG document"}
}

// Classified returns d with Kind filled in.
func (d IntakeDocument) Classified() IntakeDocument {
	if d.Kind == "" {
		d.Kind = constants.KindFor(d.MimeType, filepath.Ext(d.Filename))
	}
	return d
}

// Materialize writes the document to a temporary file in dir (os.TempDir when
// empty). The returned release func removes it and is safe to call more than once.
func (d IntakeDocument) Materialize(dir string, logger *slog.Logger) (string, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.CreateTemp(dir, "invoice-*"+d.Kind.Extension())
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	release := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("pipeline.temp.remove_failed", "path", path, "error", err)
		}
	}
	if _, err := f.Write(d.Data); err != nil {
		_ = f.Close()
		release()
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return path, release, nil
}
