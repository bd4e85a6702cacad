package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const dynamoSK = "STATE"

// dynamodbAPI is the subset of the DynamoDB client used by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps both scopes in one single-table layout:
// PK = <SCOPE>#<key>, SK = STATE, data = JSON string, version = number,
// ttl = unix seconds. Writes are conditional on the version.
type DynamoStore struct {
	api   dynamodbAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

// NewDynamo creates a store over table. A zero ttl omits the ttl attribute.
func NewDynamo(api dynamodbAPI, table string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("state: dynamodb api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("state: dynamodb table name must not be empty")
	}
	return &DynamoStore{api: api, table: table, ttl: ttl, now: time.Now}, nil
}

func dynamoPK(scope Scope, key string) string {
	return strings.ToUpper(string(scope)) + "#" + key
}

func (d *DynamoStore) itemKey(scope Scope, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: dynamoPK(scope, key)},
		"SK": &types.AttributeValueMemberS{Value: dynamoSK},
	}
}

// Read loads the document for key with a consistent read.
func (d *DynamoStore) Read(ctx context.Context, scope Scope, key string) (Document, int64, error) {
	if err := checkScope(scope, key); err != nil {
		return nil, 0, err
	}
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.itemKey(scope, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	if out == nil || len(out.Item) == 0 {
		return Document{}, 0, nil
	}
	attr, ok := out.Item["data"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: errors.New("missing data attribute")}
	}
	var version int64
	if n, ok := out.Item["version"].(*types.AttributeValueMemberN); ok {
		if version, err = strconv.ParseInt(n.Value, 10, 64); err != nil {
			return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: fmt.Errorf("bad version: %w", err)}
		}
	}
	doc, err := decodeDocument([]byte(attr.Value))
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	return doc, version, nil
}

// Write puts the item only if its version attribute still equals version.
// Version 0 matches a missing item and an item written without a version.
func (d *DynamoStore) Write(ctx context.Context, scope Scope, key string, doc Document, version int64) (int64, error) {
	if err := checkScope(scope, key); err != nil {
		return 0, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	now := d.now()
	next := version + 1
	item := d.itemKey(scope, key)
	item["data"] = &types.AttributeValueMemberS{Value: string(data)}
	item["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(next, 10)}
	item["updated_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)}
	if d.ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(d.ttl).Unix(), 10)}
	}

	in := &dynamodb.PutItemInput{
		TableName:                aws.String(d.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#v)"),
		ExpressionAttributeNames: map[string]string{"#v": "version"},
	}
	if version > 0 {
		in.ConditionExpression = aws.String("#v = :v")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
		}
	}
	if _, err := d.api.PutItem(ctx, in); err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return 0, conflict(scope, key, version)
		}
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	return next, nil
}

// Delete removes the item for key.
func (d *DynamoStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := checkScope(scope, key); err != nil {
		return err
	}
	_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       d.itemKey(scope, key),
	})
	if err != nil {
		return &StorageError{Op: "DELETE", Scope: scope, Key: key, Err: err}
	}
	return nil
}

// Keys scans the table for items of scope. Intended for the sweeper on small tables.
func (d *DynamoStore) Keys(ctx context.Context, scope Scope) ([]string, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	prefix := dynamoPK(scope, "")
	in := &dynamodb.ScanInput{
		TableName:            aws.String(d.table),
		FilterExpression:     aws.String("begins_with(PK, :prefix) AND SK = :sk"),
		ProjectionExpression: aws.String("PK"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
			":sk":     &types.AttributeValueMemberS{Value: dynamoSK},
		},
	}

	var keys []string
	for {
		out, err := d.api.Scan(ctx, in)
		if err != nil {
			return nil, &StorageError{Op: "LIST", Scope: scope, Err: fmt.Errorf("scan: %w", err)}
		}
		for _, item := range out.Items {
			pk, ok := item["PK"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			keys = append(keys, strings.TrimPrefix(pk.Value, prefix))
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return keys, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (d *DynamoStore) Close() error {
	return nil
}
