package vdataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/hupe1980/worklist/catalog"
	"github.com/hupe1980/worklist/metric"
	"github.com/hupe1980/worklist/model"
)

var (
	// ErrNotOpen is returned when the dataset is used before Open.
	ErrNotOpen = errors.New("vdataset: dataset not open")

	// ErrNotFound is returned when no catalog matches the connection identifier.
	ErrNotFound = errors.New("vdataset: work list not found")

	// ErrAlreadyOpen is returned by Open on an open dataset.
	ErrAlreadyOpen = errors.New("vdataset: dataset already open")

	// ErrInvalidConnection is returned for identifiers that contain no name.
	ErrInvalidConnection = errors.New("vdataset: invalid connection identifier")
)

// maxDecodeRounds bounds decode-until-stable on adversarial input.
const maxDecodeRounds = 16

// Resolver looks up catalogs by name. *registry.Registry implements it.
type Resolver interface {
	Get(name string) (catalog.Catalog, bool)
}

// FieldType is the type of a schema field.
type FieldType uint8

const (
	FieldInteger FieldType = iota
	FieldGeometry
)

func (t FieldType) String() string {
	if t == FieldGeometry {
		return "geometry"
	}
	return "integer"
}

// Field describes one column of the fixed schema.
type Field struct {
	Name   string    `json:"name"`
	Type   FieldType `json:"type"`
	Unique bool      `json:"unique,omitempty"`
}

// Field names.
const (
	FieldID        = "id"
	FieldStatus    = "status"
	FieldVisited   = "visited"
	FieldIsCurrent = "isCurrent"
	FieldShape     = "shape"
)

var schema = []Field{
	{Name: FieldID, Type: FieldInteger, Unique: true},
	{Name: FieldStatus, Type: FieldInteger},
	{Name: FieldVisited, Type: FieldInteger},
	{Name: FieldIsCurrent, Type: FieldInteger},
	{Name: FieldShape, Type: FieldGeometry},
}

// Row is one fully populated record. Boolean fields are 0 or 1.
type Row struct {
	ID        int64
	Status    int
	Visited   int
	IsCurrent int
	Shape     orb.Geometry
}

// Values returns the row in schema order.
func (r Row) Values() []any {
	return []any{r.ID, r.Status, r.Visited, r.IsCurrent, r.Shape}
}

// QueryFilter selects rows. If ObjectIDs is non-nil the query is an
// attribute query and Extent is ignored; otherwise it is a spatial query and
// a nil Extent selects all rows. A nil Tolerance uses the catalog's spatial
// reference tolerance.
type QueryFilter struct {
	ObjectIDs []int64
	Extent    *orb.Bound
	Tolerance *float64
	Status    *model.Status
}

// Options configures a Dataset.
type Options struct {
	Logger  *slog.Logger
	Metrics metric.Collector
}

// Dataset is the virtual dataset over one catalog.
type Dataset struct {
	resolver Resolver
	logger   *slog.Logger
	metrics  metric.Collector

	mu      sync.Mutex
	catalog catalog.Catalog // nil while closed
	cancel  func()
}

// New creates a closed Dataset resolving names through resolver.
func New(resolver Resolver, optFns ...func(o *Options)) *Dataset {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Dataset{
		resolver: resolver,
		logger:   logger,
		metrics:  metric.OrNoop(opts.Metrics),
	}
}

// ParseName extracts the work-list name from a connection identifier:
// percent-decoding until stable, dropping query and fragment, taking the last
// path segment and removing up to two file extensions (name.xml.wl).
func ParseName(connectionID string) (string, error) {
	s := connectionID
	for range maxDecodeRounds {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			break
		}
		s = decoded
	}

	if strings.Contains(s, "://") {
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
	}

	s = strings.TrimRight(s, `/\`)
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}

	for range 2 {
		if ext := filepath.Ext(s); ext != "" && ext != s {
			s = strings.TrimSuffix(s, ext)
		}
	}

	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidConnection, connectionID)
	}
	return s, nil
}

// Open resolves connectionID and returns the single table name of the
// dataset, which equals the catalog name.
func (d *Dataset) Open(ctx context.Context, connectionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := ParseName(connectionID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.catalog != nil {
		return nil, ErrAlreadyOpen
	}

	c, ok := d.resolver.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	d.catalog = c

	d.logger.Debug("dataset opened", "worklist", name)
	return []string{c.Name()}, nil
}

// AttachCanceller sets the function Close uses to stop the background
// refresh of the open catalog. It replaces a previously attached one.
func (d *Dataset) AttachCanceller(cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel = cancel
}

// IsOpen reports whether the dataset is open.
func (d *Dataset) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.catalog != nil
}

// Catalog returns the open catalog.
func (d *Dataset) Catalog() (catalog.Catalog, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.catalog == nil {
		return nil, ErrNotOpen
	}
	return d.catalog, nil
}

// TableNames returns the table names of the open dataset.
func (d *Dataset) TableNames() ([]string, error) {
	c, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	return []string{c.Name()}, nil
}

// Schema returns the fixed field schema.
func (d *Dataset) Schema() []Field {
	return slices.Clone(schema)
}

// Extent returns the extent of the open catalog, or nil if it has none.
func (d *Dataset) Extent() (*orb.Bound, error) {
	c, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	return c.Extent(), nil
}

// Query returns the rows selected by f.
func (d *Dataset) Query(ctx context.Context, f QueryFilter) ([]Row, error) {
	c, err := d.Catalog()
	if err != nil {
		return nil, err
	}

	start := time.Now()

	var items []*model.WorkItem
	kind := "spatial"
	if f.ObjectIDs != nil {
		kind = "ids"
		items = c.Search(f.ObjectIDs)
	} else {
		tolerance := c.SpatialReference().Tolerance()
		if f.Tolerance != nil {
			tolerance = *f.Tolerance
		}
		items = c.SearchSpatial(catalog.SpatialFilter{Extent: f.Extent, Tolerance: tolerance}, f.Status)
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state, err := c.ItemState(item)
		if err != nil {
			continue
		}
		if f.ObjectIDs != nil && f.Status != nil && state.Status != *f.Status {
			continue
		}

		rows = append(rows, newRow(c, item, state))
	}

	d.metrics.RecordQuery("dataset:"+kind, len(rows), time.Since(start))
	return rows, nil
}

func newRow(c catalog.Catalog, item *model.WorkItem, state catalog.ItemState) Row {
	shape := c.ItemDisplayGeometry(item)
	if shape == nil {
		shape = orb.Polygon{}
	}

	return Row{
		ID:        item.OID,
		Status:    int(state.Status),
		Visited:   boolInt(state.Visited),
		IsCurrent: boolInt(state.Current),
		Shape:     shape,
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close returns the dataset to the closed state and fires the attached
// refresh canceller without waiting. Closing a closed dataset is a no-op.
func (d *Dataset) Close() error {
	d.mu.Lock()
	c := d.catalog
	cancel := d.cancel
	d.catalog = nil
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		d.logger.Debug("dataset closed", "worklist", c.Name())
	}
	return nil
}
