package declaration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/blobstore"
	"github.com/onterapia/teleconsulta/pkg/pagination"
)

var (
	ErrMissingFields = errors.New("preencha todos os campos")
	ErrUnknownType   = errors.New("unknown declaration type")
	ErrNotFound      = errors.New("declaration not found")
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeHTML = "text/html; charset=utf-8"

	// listWindow bounds how many blobs List scans per issuer.
	listWindow = 500
)

// Request carries the form the psychologist fills in.
type Request struct {
	Type         string `json:"tipo"`
	Name         string `json:"nome"`
	CPF          string `json:"cpf"`
	Date         string `json:"data"`
	Time         string `json:"horario"`
	Psychologist string `json:"psicologo,omitempty"`
	CRP          string `json:"crp,omitempty"`
}

// Declaration describes an issued document. ID addresses the PDF.
type Declaration struct {
	ID       string    `json:"id"`
	HTMLID   string    `json:"htmlId"`
	Type     string    `json:"tipo"`
	Title    string    `json:"title"`
	Patient  string    `json:"nome"`
	IssuedBy string    `json:"issuedBy"`
	IssuedAt time.Time `json:"issuedAt"`
	Size     int64     `json:"size"`
	Hash     string    `json:"hash"`
}

type Service struct {
	catalog *Catalog
	store   blobstore.Store
	now     func() time.Time
	logger  zerolog.Logger
}

func NewService(catalog *Catalog, store blobstore.Store, logger zerolog.Logger) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		now:     time.Now,
		logger:  logger.With().Str("component", "declaration").Logger(),
	}
}

func (s *Service) Types() []*Type {
	return s.catalog.Types()
}

func (r *Request) trim() {
	r.Name = strings.TrimSpace(r.Name)
	r.CPF = strings.TrimSpace(r.CPF)
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
}

// Issue renders the declaration as HTML and PDF and stores both under
// issuer.
func (s *Service) Issue(ctx context.Context, issuer string, req Request) (*Declaration, error) {
	req.trim()
	if req.Name == "" || req.CPF == "" || req.Date == "" || req.Time == "" {
		return nil, ErrMissingFields
	}
	t, ok := s.catalog.Lookup(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}

	f := Fields{Name: req.Name, CPF: req.CPF, Date: req.Date, Time: req.Time}
	bodyHTML, err := t.BodyHTML(f)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	bodyText, err := t.BodyText(f)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	issuedAt := s.now()
	doc := document{
		Title:        t.Title,
		Heading:      heading,
		Body:         bodyHTML,
		Text:         bodyText,
		Issued:       issuedAt.Format("02/01/2006"),
		Psychologist: orLine(req.Psychologist, signatureLine),
		CRP:          orLine(req.CRP, crpLine),
	}

	html, err := renderHTML(doc)
	if err != nil {
		return nil, err
	}
	pdf, err := renderPDF(doc)
	if err != nil {
		return nil, err
	}

	tags := map[string]string{"type": t.ID, "patient": req.Name}
	htmlMeta, err := s.store.Upload(ctx, blobstore.BlobMetadata{
		FileName:    t.ID + ".html",
		ContentType: contentTypeHTML,
		OwnerID:     issuer,
		Category:    blobstore.CategoryDeclaration,
		Tags:        tags,
	}, bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("store html: %w", err)
	}

	pdfTags := map[string]string{"type": t.ID, "patient": req.Name, "html": htmlMeta.ID}
	pdfMeta, err := s.store.Upload(ctx, blobstore.BlobMetadata{
		FileName:    t.ID + ".pdf",
		ContentType: contentTypePDF,
		OwnerID:     issuer,
		Category:    blobstore.CategoryDeclaration,
		Tags:        pdfTags,
	}, bytes.NewReader(pdf))
	if err != nil {
		if derr := s.store.Delete(ctx, htmlMeta.ID); derr != nil {
			s.logger.Warn().Err(derr).Str("html_id", htmlMeta.ID).Msg("remove html rendering after failed pdf upload")
		}
		return nil, fmt.Errorf("store pdf: %w", err)
	}

	s.logger.Info().Str("id", pdfMeta.ID).Str("type", t.ID).Str("issuer", issuer).Msg("declaration issued")
	return s.fromMeta(pdfMeta), nil
}

func (s *Service) fromMeta(m *blobstore.BlobMetadata) *Declaration {
	d := &Declaration{
		ID:       m.ID,
		HTMLID:   m.Tags["html"],
		Type:     m.Tags["type"],
		Patient:  m.Tags["patient"],
		IssuedBy: m.OwnerID,
		IssuedAt: m.CreatedAt,
		Size:     m.Size,
		Hash:     m.Hash,
	}
	if t, ok := s.catalog.Lookup(d.Type); ok {
		d.Title = t.Title
	}
	return d
}

// Format selects which rendering Open returns.
type Format int

const (
	FormatPDF Format = iota
	FormatHTML
)

// Open returns a stored rendering of the declaration id. Only the issuer
// can read it; an empty issuer skips the check.
func (s *Service) Open(ctx context.Context, issuer, id string, format Format) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	meta, err := s.store.GetMetadata(ctx, id)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if meta.Category != blobstore.CategoryDeclaration || meta.ContentType != contentTypePDF ||
		(issuer != "" && meta.OwnerID != issuer) {
		return nil, nil, ErrNotFound
	}
	if format == FormatHTML {
		id = meta.Tags["html"]
	}
	rc, meta, err := s.store.Download(ctx, id)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, meta, nil
}

// List returns the PDFs issued by issuer, newest first.
func (s *Service) List(ctx context.Context, issuer string, limit, offset int) ([]*Declaration, int, error) {
	metas, _, err := s.store.ListByOwner(ctx, issuer, blobstore.CategoryDeclaration, listWindow, 0)
	if err != nil {
		return nil, 0, err
	}
	var out []*Declaration
	for _, m := range metas {
		if m.ContentType == contentTypePDF {
			out = append(out, s.fromMeta(m))
		}
	}
	return pagination.Page(out, limit, offset), len(out), nil
}
