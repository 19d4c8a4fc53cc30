// Package stream drives parent reindexing from DynamoDB Streams.
//
// Writes made through store.Store run the reindex hooks inline. Tables also
// written by other producers can instead attach a Handler to their stream
// (view type NEW_AND_OLD_IMAGES) so that the same registry decides which
// parents to reindex. Do not use both for the same table; parents would be
// reindexed twice.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/cascadeindex/lifecycle"
	"github.com/jacentio/cascadeindex/reindex"
)

// ErrUnknownTable is returned when an event source ARN carries no table name.
var ErrUnknownTable = errors.New("stream: cannot determine table from event source")

// managedAttrs never count as record changes.
var managedAttrs = []string{"version", "created_at", "updated_at", "ttl"}

// Decoder builds a child record from a stream image.
type Decoder func(image map[string]types.AttributeValue) (lifecycle.Record, error)

// Unmarshal returns a Decoder that unmarshals images into a new T.
// P must be *T and implement lifecycle.Record, usually by returning a
// package-level model from Model.
func Unmarshal[T any, P interface {
	*T
	lifecycle.Record
}]() Decoder {
	return func(image map[string]types.AttributeValue) (lifecycle.Record, error) {
		rec := P(new(T))
		if err := attributevalue.UnmarshalMap(image, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
}

// Handler processes DynamoDB stream events for parent reindexing.
type Handler struct {
	registry *reindex.Registry
	logger   *slog.Logger

	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewHandler creates a new stream handler.
func NewHandler(registry *reindex.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		logger:   logger,
		decoders: make(map[string]Decoder),
	}
}

// Bind routes events of table to decode. Events of unbound tables are skipped.
func (h *Handler) Bind(table string, decode Decoder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.decoders[table] = decode
}

// HandleEvent processes a batch of stream records in order and stops at the
// first failure. This function is designed to be used as an AWS Lambda handler;
// returning the error makes Lambda retry the batch.
func (h *Handler) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"eventName", record.EventName,
				"error", err,
			)
			return err
		}
	}
	h.logger.Info("stream batch processed", "records", len(event.Records))
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	table, err := TableFromARN(record.EventSourceArn)
	if err != nil {
		return err
	}

	h.mu.RLock()
	decode, ok := h.decoders[table]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("no decoder bound, skipping", "table", table, "eventID", record.EventID)
		return nil
	}

	change := record.Change
	switch events.DynamoDBOperationType(record.EventName) {
	case events.DynamoDBOperationTypeInsert:
		image := ConvertImage(change.NewImage)
		return h.save(ctx, decode, image, true, slices.Sorted(maps.Keys(image)))

	case events.DynamoDBOperationTypeModify:
		oldTTL := getNumberAttr(change.OldImage, "ttl")
		newTTL := getNumberAttr(change.NewImage, "ttl")
		switch {
		case oldTTL != 0:
			// Already soft deleted; its destroy cascade has run.
			return nil
		case newTTL != 0:
			return h.destroy(ctx, decode, ConvertImage(change.NewImage))
		}
		oldImage, newImage := ConvertImage(change.OldImage), ConvertImage(change.NewImage)
		return h.save(ctx, decode, newImage, false, ChangedAttributes(oldImage, newImage))

	case events.DynamoDBOperationTypeRemove:
		if getNumberAttr(change.OldImage, "ttl") != 0 {
			// TTL expiry of a soft deleted item.
			return nil
		}
		return h.destroy(ctx, decode, ConvertImage(change.OldImage))
	}
	return nil
}

// save replays a save cycle: evaluation followed by the flush.
func (h *Handler) save(ctx context.Context, decode Decoder, image map[string]types.AttributeValue, isNew bool, changed []string) error {
	rec, err := decodeRecord(decode, image)
	if err != nil {
		return err
	}
	if t, ok := rec.(lifecycle.Tracker); ok {
		if !isNew {
			t.MarkPersisted()
		}
		t.MarkChanged(withoutManaged(changed)...)
	}

	if err := h.registry.EvaluateForReindex(ctx, rec); err != nil {
		return err
	}
	return h.registry.FlushReindex(ctx, rec)
}

func (h *Handler) destroy(ctx context.Context, decode Decoder, image map[string]types.AttributeValue) error {
	rec, err := decodeRecord(decode, image)
	if err != nil {
		return err
	}
	if t, ok := rec.(lifecycle.Tracker); ok {
		t.MarkPersisted()
	}
	return h.registry.CascadeOnDestroy(ctx, rec)
}

func decodeRecord(decode Decoder, image map[string]types.AttributeValue) (lifecycle.Record, error) {
	rec, err := decode(image)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return rec, nil
}

// ChangedAttributes returns the sorted names of attributes that differ
// between two images, including added and removed ones. Store managed
// attributes are left out.
func ChangedAttributes(oldImage, newImage map[string]types.AttributeValue) []string {
	var changed []string
	for name, v := range newImage {
		if old, ok := oldImage[name]; !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, name)
		}
	}
	for name := range oldImage {
		if _, ok := newImage[name]; !ok {
			changed = append(changed, name)
		}
	}
	slices.Sort(changed)
	return withoutManaged(changed)
}

func withoutManaged(names []string) []string {
	return slices.DeleteFunc(names, func(name string) bool {
		return slices.Contains(managedAttrs, name)
	})
}

// TableFromARN extracts the table name from a DynamoDB stream ARN such as
// arn:aws:dynamodb:eu-west-1:123456789012:table/comments/stream/2026-01-01T00:00:00.000.
func TableFromARN(arn string) (string, error) {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, arn)
	}
	table, _, _ := strings.Cut(rest, "/")
	if table == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, arn)
	}
	return table, nil
}
