package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/cascadeindex/lifecycle"
)

// managedAttrs are written by the Store and never taken from entities.
var managedAttrs = []string{"version", "created_at", "updated_at", "ttl"}

// Client is the subset of the DynamoDB API used by Store.
// *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store persists entities in DynamoDB and runs their lifecycle hooks.
type Store struct {
	client Client
	config Config
	logger *slog.Logger
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		logger: config.Logger,
	}
}

// Save writes entity and runs its before-save and after-save hooks.
// New entities are created; existing ones are updated with their changed
// attributes only. The entity is marked persisted once the write succeeds,
// even if an after-save hook fails.
func (s *Store) Save(ctx context.Context, entity Entity) error {
	model := entity.Model()

	if err := model.RunBeforeSave(ctx, entity); err != nil {
		return fmt.Errorf("before save %s: %w", model.Name(), err)
	}

	var err error
	if entity.IsNewRecord() {
		err = s.create(ctx, entity)
	} else {
		err = s.update(ctx, entity)
	}
	if err != nil {
		return err
	}

	hookErr := model.RunAfterSave(ctx, entity)
	if t, ok := entity.(lifecycle.Tracker); ok {
		t.MarkPersisted()
	}
	if hookErr != nil {
		return fmt.Errorf("after save %s: %w", model.Name(), hookErr)
	}
	return nil
}

// Destroy deletes entity and runs its after-destroy hooks.
// By default the entity is soft deleted by setting its TTL.
func (s *Store) Destroy(ctx context.Context, entity Entity) error {
	if entity.IsNewRecord() {
		return ErrNotFound
	}

	var err error
	if s.config.HardDelete {
		err = s.deleteItem(ctx, entity)
	} else {
		err = s.setTTL(ctx, entity)
	}
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "entity destroyed",
		"table", entity.TableName(),
		"model", entity.Model().Name(),
		"hard", s.config.HardDelete,
	)

	if err := entity.Model().RunAfterDestroy(ctx, entity); err != nil {
		return fmt.Errorf("after destroy %s: %w", entity.Model().Name(), err)
	}
	return nil
}

// Get retrieves an item by key, returning ErrNotFound if deleted or missing.
func (s *Store) Get(ctx context.Context, table string, key PK) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	if IsDeleted(result.Item, s.config.Now()) {
		return nil, ErrNotFound
	}

	return unmarshalItem(result.Item), nil
}

// Load reads the stored state of entity, located by its key, into entity
// and marks it persisted.
func (s *Store) Load(ctx context.Context, entity Entity) error {
	item, err := s.Get(ctx, entity.TableName(), entity.GetKey())
	if err != nil {
		return err
	}
	if err := attributevalue.UnmarshalMap(item.Raw, entity); err != nil {
		return fmt.Errorf("unmarshal %s: %w", entity.TableName(), err)
	}
	if v, ok := entity.(Versioner); ok {
		v.SetVersion(item.Version)
	}
	if t, ok := entity.(lifecycle.Tracker); ok {
		t.MarkPersisted()
	}
	return nil
}

// Query queries items with automatic TTL filtering.
// Parent accessors use it to resolve one-to-many associations.
func (s *Store) Query(ctx context.Context, input QueryInput) ([]*Item, error) {
	filterExpr := TTLFilterExpr()
	if input.FilterExpression != "" {
		filterExpr = fmt.Sprintf("(%s) AND (%s)", input.FilterExpression, filterExpr)
	}

	queryInput := &dynamodb.QueryInput{
		TableName:                 aws.String(input.TableName),
		KeyConditionExpression:    aws.String(input.KeyConditionExpression),
		FilterExpression:          aws.String(filterExpr),
		ExpressionAttributeNames:  mergeExprNames(TTLFilterNames(), input.ExpressionAttributeNames),
		ExpressionAttributeValues: mergeExprValues(TTLFilterValues(s.config.Now()), input.ExpressionAttributeValues),
	}
	if input.IndexName != "" {
		queryInput.IndexName = aws.String(input.IndexName)
	}
	if input.Limit > 0 {
		queryInput.Limit = aws.Int32(input.Limit)
	}
	if input.ScanIndexForward != nil {
		queryInput.ScanIndexForward = input.ScanIndexForward
	}

	var items []*Item
	paginator := dynamodb.NewQueryPaginator(s.client, queryInput)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			items = append(items, unmarshalItem(raw))
		}
	}

	return items, nil
}

// create puts a new entity, failing if its key is already taken.
func (s *Store) create(ctx context.Context, entity Entity) error {
	key := entity.GetKey()
	pkAttr, err := keyAttr(key)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(entity)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", entity.TableName(), err)
	}
	for _, k := range managedAttrs {
		delete(item, k)
	}
	maps.Copy(item, key)

	now := s.config.Now().UTC().Format(time.RFC3339)
	item["version"] = &types.AttributeValueMemberN{Value: "1"}
	item["created_at"] = &types.AttributeValueMemberS{Value: now}
	item["updated_at"] = &types.AttributeValueMemberS{Value: now}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(entity.TableName()),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": pkAttr},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrAlreadyExists
		}
		return err
	}

	if v, ok := entity.(Versioner); ok {
		v.SetVersion(1)
	}
	s.logger.DebugContext(ctx, "entity created", "table", entity.TableName(), "model", entity.Model().Name())
	return nil
}

// update writes the changed attributes of an existing entity. Attributes that
// changed but no longer marshal (nil or omitempty) are removed.
// Without changes nothing is written.
func (s *Store) update(ctx context.Context, entity Entity) error {
	key := entity.GetKey()
	pkAttr, err := keyAttr(key)
	if err != nil {
		return err
	}

	names := writableAttributes(entity.ChangedAttributes(), key)
	if len(names) == 0 {
		return nil
	}

	item, err := attributevalue.MarshalMap(entity)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", entity.TableName(), err)
	}

	exprNames := map[string]string{
		"#pk":         pkAttr,
		"#ttl":        "ttl",
		"#updated_at": "updated_at",
		"#version":    "version",
	}
	exprValues := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberS{Value: s.config.Now().UTC().Format(time.RFC3339)},
		":zero":       &types.AttributeValueMemberN{Value: "0"},
		":one":        &types.AttributeValueMemberN{Value: "1"},
	}

	var setClauses, removeClauses []string
	for i, name := range names {
		nameKey := fmt.Sprintf("#attr%d", i)
		exprNames[nameKey] = name
		if v, ok := item[name]; ok {
			valueKey := fmt.Sprintf(":val%d", i)
			exprValues[valueKey] = v
			setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		} else {
			removeClauses = append(removeClauses, nameKey)
		}
	}
	setClauses = append(setClauses,
		"#updated_at = :updated_at",
		"#version = if_not_exists(#version, :zero) + :one",
	)

	updateExpr := "SET " + strings.Join(setClauses, ", ")
	if len(removeClauses) > 0 {
		updateExpr += " REMOVE " + strings.Join(removeClauses, ", ")
	}

	condExpr := "attribute_exists(#pk) AND attribute_not_exists(#ttl)"
	versioner, versioned := entity.(Versioner)
	if versioned {
		condExpr += " AND #version = :expected_version"
		exprValues[":expected_version"] = &types.AttributeValueMemberN{
			Value: strconv.FormatInt(versioner.CurrentVersion(), 10),
		}
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(entity.TableName()),
		Key:                       key,
		UpdateExpression:          aws.String(updateExpr),
		ConditionExpression:       aws.String(condExpr),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if versioned {
				return ErrConcurrentModification
			}
			return ErrNotFound
		}
		return err
	}

	if versioned {
		versioner.SetVersion(versioner.CurrentVersion() + 1)
	}
	s.logger.DebugContext(ctx, "entity updated",
		"table", entity.TableName(),
		"model", entity.Model().Name(),
		"attributes", names,
	)
	return nil
}

// setTTL marks an entity for deletion by setting its TTL to now.
// This also increments the version to fail concurrent updates.
func (s *Store) setTTL(ctx context.Context, entity Entity) error {
	key := entity.GetKey()
	pkAttr, err := keyAttr(key)
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(entity.TableName()),
		Key:                 key,
		UpdateExpression:    aws.String("SET #ttl = :now, #version = if_not_exists(#version, :zero) + :one"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":      pkAttr,
			"#ttl":     "ttl",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(s.config.Now().Unix(), 10),
			},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
	})

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrAlreadyDeleted
	}
	return err
}

// deleteItem removes an entity permanently.
func (s *Store) deleteItem(ctx context.Context, entity Entity) error {
	key := entity.GetKey()
	pkAttr, err := keyAttr(key)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(entity.TableName()),
		Key:                      key,
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": pkAttr},
	})

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrNotFound
	}
	return err
}

// keyAttr returns the key attribute used in existence conditions.
func keyAttr(key PK) (string, error) {
	if len(key) == 0 {
		return "", ErrEmptyKey
	}
	return slices.Sorted(maps.Keys(key))[0], nil
}

// writableAttributes drops key and managed attributes from a change set.
func writableAttributes(changed []string, key PK) []string {
	var names []string
	for _, name := range changed {
		if _, isKey := key[name]; isKey || slices.Contains(managedAttrs, name) {
			continue
		}
		if slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// unmarshalItem converts a DynamoDB item to an Item struct.
func unmarshalItem(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}

	if v, ok := raw["version"].(*types.AttributeValueMemberN); ok {
		item.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw["created_at"].(*types.AttributeValueMemberS); ok {
		item.CreatedAt = v.Value
	}
	if v, ok := raw["updated_at"].(*types.AttributeValueMemberS); ok {
		item.UpdatedAt = v.Value
	}

	return item
}
