package store

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/cascadeindex/lifecycle"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Entity is the base interface for all storable records.
// Attribute names reported by ChangedAttributes are DynamoDB attribute names
// (the dynamodbav tag names of the entity struct).
type Entity interface {
	lifecycle.Record

	// TableName returns the DynamoDB table name for this entity type.
	TableName() string

	// GetKey returns the primary key for this entity.
	GetKey() PK
}

// Versioner is implemented by entities that take part in optimistic locking.
// Embed Versioned to get it.
type Versioner interface {
	CurrentVersion() int64
	SetVersion(v int64)
}

// Versioned stores the optimistic lock version of an entity.
type Versioned struct {
	Version int64 `dynamodbav:"version"`
}

// CurrentVersion returns the version the entity was loaded or saved with.
func (v *Versioned) CurrentVersion() int64 { return v.Version }

// SetVersion updates the stored version.
func (v *Versioned) SetVersion(n int64) { v.Version = n }

// Item represents a retrieved DynamoDB item with common fields.
type Item struct {
	// Raw is the raw DynamoDB item.
	Raw map[string]types.AttributeValue

	// Version is the optimistic lock version.
	Version int64

	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string

	// UpdatedAt is the ISO 8601 last update timestamp.
	UpdatedAt string
}

// QueryInput defines parameters for querying entities.
type QueryInput struct {
	// TableName is the DynamoDB table to query.
	TableName string

	// IndexName is the optional GSI/LSI to query.
	IndexName string

	// KeyConditionExpression is the DynamoDB key condition.
	KeyConditionExpression string

	// FilterExpression is an optional filter (TTL filter is automatically merged).
	FilterExpression string

	// ExpressionAttributeNames maps expression attribute name placeholders.
	ExpressionAttributeNames map[string]string

	// ExpressionAttributeValues maps expression attribute value placeholders.
	ExpressionAttributeValues map[string]types.AttributeValue

	// Limit is the maximum number of items per page (0 = no limit).
	Limit int32

	// ScanIndexForward determines sort order (true = ascending, false = descending).
	ScanIndexForward *bool
}
