// Package report renders reporting views and entity tables as CSV and stores
// them as blobs.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"countries/internal/blob"
	"countries/pkg/domain"
)

const (
	ContentType = "text/csv"
	KeyPrefix   = "reports/"
	urlTTL      = 24 * time.Hour
)

// Source reads every row of a mapped table or view.
type Source interface {
	View(ctx context.Context, t domain.EntityType) ([]domain.Entity, *domain.Mapping, error)
}

// Artifact describes one stored export.
type Artifact struct {
	RunID string
	View  domain.EntityType
	Rows  int
	Info  blob.Info
	// URL is empty when the store cannot hand out links.
	URL string
}

// Exporter writes CSV exports to a blob store.
type Exporter struct {
	src   Source
	store blob.Store
	log   log.FieldLogger
	now   func() time.Time
	newID func() string
}

// NewExporter builds an exporter logging through the standard logger.
func NewExporter(src Source, store blob.Store) *Exporter {
	return &Exporter{
		src:   src,
		store: store,
		log:   log.WithField("component", "countries.report"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Key is the blob key of run id for view.
func Key(view domain.EntityType, runID string) string {
	return KeyPrefix + string(view) + "/" + runID + ".csv"
}

// Export renders view to CSV under reports/<view>/<run-id>.csv.
func (e *Exporter) Export(ctx context.Context, view domain.EntityType) (Artifact, error) {
	rows, mapping, err := e.src.View(ctx, view)
	if err != nil {
		return Artifact{}, fmt.Errorf("read %s: %w", view, err)
	}
	payload, err := render(mapping, rows)
	if err != nil {
		return Artifact{}, err
	}
	runID := e.newID()
	info, err := e.store.Put(ctx, Key(view, runID), bytes.NewReader(payload), blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"run-id":       runID,
			"view":         string(view),
			"rows":         strconv.Itoa(len(rows)),
			"generated-at": e.now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s export: %w", view, err)
	}
	art := Artifact{RunID: runID, View: view, Rows: len(rows), Info: info}
	if u, err := e.store.URL(ctx, info.Key, urlTTL); err == nil {
		art.URL = u
	} else if !errors.Is(err, blob.ErrUnsupported) {
		e.log.WithError(err).WithField("key", info.Key).Warn("export link unavailable")
	}
	e.log.WithFields(log.Fields{"view": view, "rows": art.Rows, "key": info.Key}).Info("report exported")
	return art, nil
}

// ExportAll exports each view in order and stops at the first failure.
func (e *Exporter) ExportAll(ctx context.Context, views ...domain.EntityType) ([]Artifact, error) {
	if len(views) == 0 {
		views = []domain.EntityType{domain.ViewCountryInfo, domain.ViewCountryCurrencyInfo, domain.ViewCountryTimeZoneInfo}
	}
	out := make([]Artifact, 0, len(views))
	for _, v := range views {
		art, err := e.Export(ctx, v)
		if err != nil {
			return out, err
		}
		out = append(out, art)
	}
	return out, nil
}

// Runs lists the stored exports of view, oldest key first.
func (e *Exporter) Runs(ctx context.Context, view domain.EntityType) ([]blob.Info, error) {
	return e.store.List(ctx, KeyPrefix+string(view)+"/")
}

func render(mapping *domain.Mapping, rows []domain.Entity) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(mapping.CSVHeader)
	b.WriteByte('\n')
	for _, row := range rows {
		rec, ok := row.(domain.CSVRecord)
		if !ok {
			return nil, fmt.Errorf("%s rows do not render as CSV", mapping.Type)
		}
		b.WriteString(rec.ToCSVString())
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}
