package store_test

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// memClient is an in-memory stand-in for DynamoDB. It understands the
// condition and update expressions the store builds, nothing more.
type memClient struct {
	mu      sync.Mutex
	keys    map[string][]string
	tables  map[string]map[string]map[string]types.AttributeValue
	updates []*dynamodb.UpdateItemInput
	puts    int
	queries []*dynamodb.QueryInput
	err     error
}

func newMemClient(keys map[string][]string) *memClient {
	return &memClient{
		keys:   keys,
		tables: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

func (m *memClient) keyOf(table string, item map[string]types.AttributeValue) string {
	var parts []string
	for _, k := range m.keys[table] {
		parts = append(parts, k+"="+attrString(item[k]))
	}
	return strings.Join(parts, "|")
}

func (m *memClient) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		m.tables[name] = t
	}
	return t
}

func (m *memClient) put(table string, item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(table)[m.keyOf(table, item)] = item
}

func (m *memClient) item(table string, key map[string]types.AttributeValue) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table(table)[m.keyOf(table, key)]
}

func (m *memClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: m.table(*in.TableName)[m.keyOf(*in.TableName, in.Key)]}, nil
}

func (m *memClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	t := m.table(*in.TableName)
	k := m.keyOf(*in.TableName, in.Item)
	if _, exists := t[k]; exists && in.ConditionExpression != nil &&
		strings.Contains(*in.ConditionExpression, "attribute_not_exists") {
		return nil, &types.ConditionalCheckFailedException{}
	}
	t[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, in)

	t := m.table(*in.TableName)
	k := m.keyOf(*in.TableName, in.Key)
	item, exists := t[k]
	cond := ""
	if in.ConditionExpression != nil {
		cond = *in.ConditionExpression
	}
	if strings.Contains(cond, "attribute_exists(#pk)") && !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if _, hasTTL := item["ttl"]; hasTTL && strings.Contains(cond, "attribute_not_exists(#ttl)") {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if strings.Contains(cond, "#version = :expected_version") &&
		attrString(item["version"]) != attrString(in.ExpressionAttributeValues[":expected_version"]) {
		return nil, &types.ConditionalCheckFailedException{}
	}

	updated := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		updated[k] = v
	}
	for k, v := range in.Key {
		updated[k] = v
	}
	applyUpdate(updated, *in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	t[k] = updated
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *memClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(*in.TableName)
	k := m.keyOf(*in.TableName, in.Key)
	if _, exists := t[k]; !exists && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(t, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query ignores expressions and returns every item of the table, sorted by key.
func (m *memClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, in)
	t := m.table(*in.TableName)
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, t[k])
	}
	return out, nil
}

// applyUpdate applies "SET a = :v, ... REMOVE b, ..." expressions.
func applyUpdate(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) {
	setPart, removePart, _ := strings.Cut(expr, " REMOVE ")
	setPart = strings.TrimPrefix(setPart, "SET ")

	for _, clause := range splitClauses(setPart) {
		lhs, rhs, _ := strings.Cut(clause, " = ")
		name := names[lhs]
		if strings.HasPrefix(rhs, "if_not_exists(") {
			n, _ := strconv.ParseInt(attrString(item[name]), 10, 64)
			item[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(n+1, 10)}
			continue
		}
		item[name] = values[rhs]
	}
	if removePart != "" {
		for _, ph := range strings.Split(removePart, ", ") {
			delete(item, names[ph])
		}
	}
}

// splitClauses splits on top-level commas.
func splitClauses(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func attrString(v types.AttributeValue) string {
	switch a := v.(type) {
	case *types.AttributeValueMemberS:
		return a.Value
	case *types.AttributeValueMemberN:
		return a.Value
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", a)
	}
}
