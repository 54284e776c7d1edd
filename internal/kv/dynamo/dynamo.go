// Package dynamo implements kv.Store on DynamoDB. Conditional writes map to
// ConditionExpressions so create/bind races are settled by the store itself.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"devicegate/config"
	"devicegate/internal/kv"
)

// KeySchema names the key attributes of one table. SortAttr is empty for
// tables keyed by partition only.
type KeySchema struct {
	PartitionAttr string
	SortAttr      string
}

type Store struct {
	client *dynamodb.Client
	schema map[string]KeySchema
}

// NewClient builds a DynamoDB client from the process configuration.
// AWS_ENDPOINT_URL overrides the endpoint for local DynamoDB.
func NewClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return client, nil
}

func New(client *dynamodb.Client, schema map[string]KeySchema) *Store {
	return &Store{client: client, schema: schema}
}

func (s *Store) keyOf(table string, key kv.Key) (map[string]types.AttributeValue, KeySchema, error) {
	ks, ok := s.schema[table]
	if !ok {
		return nil, ks, fmt.Errorf("no key schema for table %q", table)
	}
	attrs := map[string]types.AttributeValue{
		ks.PartitionAttr: &types.AttributeValueMemberS{Value: key.Partition},
	}
	if ks.SortAttr != "" {
		attrs[ks.SortAttr] = &types.AttributeValueMemberS{Value: key.Sort}
	}
	return attrs, ks, nil
}

func (s *Store) Get(ctx context.Context, table string, key kv.Key) (kv.Item, error) {
	attrs, _, err := s.keyOf(table, key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       attrs,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo get on %s: %w", table, err)
	}
	if out.Item == nil {
		return nil, kv.ErrNotFound
	}
	return unmarshalItem(out.Item)
}

func (s *Store) Put(ctx context.Context, table string, key kv.Key, item kv.Item, mustNotExist bool) error {
	keyAttrs, ks, err := s.keyOf(table, key)
	if err != nil {
		return err
	}

	attrs, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return fmt.Errorf("dynamo marshal for %s: %w", table, err)
	}
	for name, av := range keyAttrs {
		attrs[name] = av
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      attrs,
	}
	if mustNotExist {
		cond, err := expression.NewBuilder().
			WithCondition(expression.AttributeNotExists(expression.Name(ks.PartitionAttr))).
			Build()
		if err != nil {
			return fmt.Errorf("dynamo condition for %s: %w", table, err)
		}
		input.ConditionExpression = cond.Condition()
		input.ExpressionAttributeNames = cond.Names()
		input.ExpressionAttributeValues = cond.Values()
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		return mapConditionErr(err, fmt.Sprintf("dynamo put on %s", table))
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, key kv.Key, set kv.Item, cond *kv.UpdateCond) error {
	keyAttrs, ks, err := s.keyOf(table, key)
	if err != nil {
		return err
	}

	var update expression.UpdateBuilder
	for attr, v := range set {
		update = update.Set(expression.Name(attr), expression.Value(v))
	}
	builder := expression.NewBuilder().WithUpdate(update)

	if cond != nil {
		var conditions []expression.ConditionBuilder
		if cond.MustExist {
			conditions = append(conditions, expression.AttributeExists(expression.Name(ks.PartitionAttr)))
		}
		for attr, want := range cond.FieldEquals {
			conditions = append(conditions, expression.Name(attr).Equal(expression.Value(want)))
		}
		if len(conditions) > 0 {
			combined := conditions[0]
			for _, c := range conditions[1:] {
				combined = combined.And(c)
			}
			builder = builder.WithCondition(combined)
		}
	}

	expr, err := builder.Build()
	if err != nil {
		return fmt.Errorf("dynamo expression for %s: %w", table, err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       keyAttrs,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return mapConditionErr(err, fmt.Sprintf("dynamo update on %s", table))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, key kv.Key) (kv.Item, error) {
	attrs, _, err := s.keyOf(table, key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(table),
		Key:          attrs,
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo delete on %s: %w", table, err)
	}
	if len(out.Attributes) == 0 {
		return nil, kv.ErrNotFound
	}
	return unmarshalItem(out.Attributes)
}

func (s *Store) Scan(ctx context.Context, table string) ([]kv.Item, error) {
	var items []kv.Item

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo scan on %s: %w", table, err)
		}
		for _, raw := range page.Items {
			it, err := unmarshalItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
	}
	return items, nil
}

func (s *Store) Query(ctx context.Context, table string, partition string) ([]kv.Item, error) {
	ks, ok := s.schema[table]
	if !ok {
		return nil, fmt.Errorf("no key schema for table %q", table)
	}

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(ks.PartitionAttr).Equal(expression.Value(partition))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("dynamo key condition for %s: %w", table, err)
	}

	var items []kv.Item
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo query on %s: %w", table, err)
		}
		for _, raw := range page.Items {
			it, err := unmarshalItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
	}
	return items, nil
}

func unmarshalItem(raw map[string]types.AttributeValue) (kv.Item, error) {
	var out map[string]any
	if err := attributevalue.UnmarshalMap(raw, &out); err != nil {
		return nil, fmt.Errorf("dynamo unmarshal: %w", err)
	}
	return kv.Item(out), nil
}

func mapConditionErr(err error, op string) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return kv.ErrConditionFailed
	}
	return fmt.Errorf("%s: %w", op, err)
}
