// Package bigquery streams rows into the analytics warehouse table.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var errClosed = errors.New("bigquery: sink not open")

// Sink writes to one table. Rows that implement bigquery.ValueSaver supply
// their own insert id, which BigQuery uses for best-effort dedupe.
type Sink struct {
	client   *bigquery.Client
	table    *bigquery.Table
	inserter *bigquery.Inserter
}

// Open connects and confirms the dataset and table exist.
func Open(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Sink, error) {
	ref, err := tableRef(gcp, cfg)
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, ref.project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: connect: %w", err)
	}
	table := client.Dataset(ref.dataset).Table(ref.table)
	s := &Sink{client: client, table: table, inserter: table.Inserter()}
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bigquery_table", ref.String()), "bigquery sink ready")
	}
	return s, nil
}

type reference struct {
	project, dataset, table string
}

func (r reference) String() string {
	return r.project + "." + r.dataset + "." + r.table
}

func tableRef(gcp config.GCPConfig, cfg config.BigQueryConfig) (reference, error) {
	r := reference{
		project: strings.TrimSpace(gcp.ProjectID),
		dataset: strings.TrimSpace(cfg.Dataset),
		table:   strings.TrimSpace(cfg.OrderEventsTable),
	}
	switch {
	case r.project == "":
		return r, errors.New("bigquery: gcp project id is required")
	case r.dataset == "":
		return r, errors.New("bigquery: dataset is required")
	case r.table == "":
		return r, errors.New("bigquery: table is required")
	}
	return r, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping reads the table metadata.
func (s *Sink) Ping(ctx context.Context) error {
	if s == nil || s.table == nil {
		return errClosed
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := s.table.Metadata(ctx); err != nil {
		if notFound(err) {
			return fmt.Errorf("bigquery: table %s.%s does not exist", s.table.DatasetID, s.table.TableID)
		}
		return fmt.Errorf("bigquery: table metadata: %w", err)
	}
	return nil
}

// Put streams rows. A PutMultiError is flattened so the first bad row's
// reason reaches the log.
func (s *Sink) Put(ctx context.Context, rows ...any) error {
	if s == nil || s.inserter == nil {
		return errClosed
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.inserter.Put(ctx, rows)
	var multi bigquery.PutMultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		return fmt.Errorf("bigquery: %d of %d rows rejected, first at index %d: %w", len(multi), len(rows), multi[0].RowIndex, multi[0].Errors)
	}
	return err
}

func (s *Sink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func notFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
