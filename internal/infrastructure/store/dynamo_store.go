package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Reserved attribute names; document fields live next to them as top-level
// attributes so they can be updated in place.
const (
	dynamoPartitionKey = "_collection"
	dynamoSortKey      = "id"
	dynamoCreatedAt    = "_created"

	// fixed-width so creation times sort lexically
	createdLayout = "2006-01-02T15:04:05.000000000Z"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore stores documents in a single DynamoDB table keyed by
// (_collection, id).
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// NewDynamoClient builds a client from the default AWS credential chain.
// A non-empty endpoint points it at DynamoDB Local or LocalStack.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *DynamoStore) Insert(ctx context.Context, collection, id string, doc any) error {
	item, err := toDynamoItem(collection, id, doc, time.Now())
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	item, err := s.getItem(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return fromDynamoItem(item)
}

func (s *DynamoStore) Replace(ctx context.Context, collection, id string, doc any) error {
	err := s.put(ctx, collection, id, doc, "attribute_exists(id)", nil)
	if errors.Is(err, ErrConditionFailed) {
		return ErrNotFound
	}
	return err
}

func (s *DynamoStore) ReplaceIf(ctx context.Context, collection, id string, doc any, expected int) error {
	cond := &versionCondition{expected: expected}
	err := s.put(ctx, collection, id, doc, cond.expression(), cond)
	if !errors.Is(err, ErrConditionFailed) {
		return err
	}
	// the document may have been deleted rather than changed
	item, getErr := s.getItem(ctx, collection, id)
	if getErr != nil {
		return getErr
	}
	if item == nil {
		return ErrNotFound
	}
	return ErrConditionFailed
}

// versionCondition guards a put on the stored version. Documents written
// before versioning have no attribute, which counts as version 0.
type versionCondition struct {
	expected int
}

func (c *versionCondition) expression() string {
	if c.expected == 0 {
		return "attribute_exists(id) AND (attribute_not_exists(#v) OR #v = :v)"
	}
	return "attribute_exists(id) AND #v = :v"
}

// put overwrites an existing item, carrying over its creation time
func (s *DynamoStore) put(ctx context.Context, collection, id string, doc any, condition string, version *versionCondition) error {
	current, err := s.getItem(ctx, collection, id)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}

	createdAt := time.Now()
	if v, ok := current[dynamoCreatedAt].(*types.AttributeValueMemberS); ok {
		if t, err := time.Parse(createdLayout, v.Value); err == nil {
			createdAt = t
		}
	}

	item, err := toDynamoItem(collection, id, doc, createdAt)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String(condition),
	}
	if version != nil {
		input.ExpressionAttributeNames = map[string]string{"#v": VersionField}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.Itoa(version.expected)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("failed to replace %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 dynamoKey(collection, id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DynamoStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	return s.query(ctx, collection, nil)
}

func (s *DynamoStore) FindByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error) {
	return s.query(ctx, collection, &fieldFilter{field: field, value: value})
}

// IncrementField uses a conditional UpdateItem. DynamoDB conditions cannot do
// arithmetic, so "field + delta >= min" is rewritten as "field >= min - delta".
func (s *DynamoStore) IncrementField(ctx context.Context, collection, id, field string, delta, min int) (int, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 dynamoKey(collection, id),
		UpdateExpression:    aws.String("SET #f = #f + :delta, #v = if_not_exists(#v, :zero) + :one"),
		ConditionExpression: aws.String("attribute_exists(id) AND #f >= :need"),
		ExpressionAttributeNames: map[string]string{
			"#f": field,
			"#v": VersionField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
			":need":  &types.AttributeValueMemberN{Value: strconv.Itoa(min - delta)},
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":one":   &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if !isConditionalCheckFailed(err) {
			return 0, fmt.Errorf("failed to increment %s/%s.%s: %w", collection, id, field, err)
		}
		item, getErr := s.getItem(ctx, collection, id)
		if getErr != nil {
			return 0, getErr
		}
		if item == nil {
			return 0, ErrNotFound
		}
		return 0, ErrConditionFailed
	}

	n, ok := out.Attributes[field].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("field %s missing from update result", field)
	}
	next, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("field %s is not an integer: %w", field, err)
	}
	return next, nil
}

type fieldFilter struct {
	field string
	value string
}

func (s *DynamoStore) query(ctx context.Context, collection string, filter *fieldFilter) ([]json.RawMessage, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": dynamoPartitionKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
		},
		ConsistentRead: aws.Bool(true),
	}
	if filter != nil {
		input.FilterExpression = aws.String("#f = :v")
		input.ExpressionAttributeNames["#f"] = filter.field
		input.ExpressionAttributeValues[":v"] = &types.AttributeValueMemberS{Value: filter.value}
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", collection, err)
		}
		items = append(items, page.Items...)
	}

	// Items come back in id order; List promises creation order.
	sort.SliceStable(items, func(i, j int) bool {
		return createdAttr(items[i]) < createdAttr(items[j])
	})

	docs := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		doc, err := fromDynamoItem(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *DynamoStore) getItem(ctx context.Context, collection, id string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            dynamoKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return out.Item, nil
}

func dynamoKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoPartitionKey: &types.AttributeValueMemberS{Value: collection},
		dynamoSortKey:      &types.AttributeValueMemberS{Value: id},
	}
}

func toDynamoItem(collection, id string, doc any, createdAt time.Time) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("document %s/%s is not a JSON object: %w", collection, id, err)
	}

	item, err := attributevalue.MarshalMap(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	item[dynamoPartitionKey] = &types.AttributeValueMemberS{Value: collection}
	item[dynamoSortKey] = &types.AttributeValueMemberS{Value: id}
	item[dynamoCreatedAt] = &types.AttributeValueMemberS{Value: createdAt.UTC().Format(createdLayout)}
	return item, nil
}

func fromDynamoItem(item map[string]types.AttributeValue) (json.RawMessage, error) {
	var fields map[string]any
	if err := attributevalue.UnmarshalMap(item, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	delete(fields, dynamoPartitionKey)
	delete(fields, dynamoCreatedAt)
	return json.Marshal(fields)
}

func createdAttr(item map[string]types.AttributeValue) string {
	if v, ok := item[dynamoCreatedAt].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
