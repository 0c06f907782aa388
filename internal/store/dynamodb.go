package store

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
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

// DynamoStore implements Store using AWS DynamoDB. Status and priority
// transitions use conditional writes, so the compare-and-set guarantees hold
// across processes, not just goroutines.
type DynamoStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoStore creates a new DynamoDB-backed store
func NewDynamoStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs when
		// static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

// storageErr tags collaborator failures so callers can errors.Is them
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrStorageUnavailable)
}

func (s *DynamoStore) CreateCall(ctx context.Context, call *types.CallRequest) error {
	item, err := attributevalue.MarshalMap(call)
	if err != nil {
		return fmt.Errorf("failed to marshal call request: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.CallsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "ID",
		},
	})
	if err != nil {
		return storageErr("failed to save call request", err)
	}
	return nil
}

func (s *DynamoStore) GetCall(ctx context.Context, id string) (*types.CallRequest, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.CallsTable),
		Key: map[string]dbtypes.AttributeValue{
			"ID": &dbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, storageErr("failed to get call request", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var call types.CallRequest
	if err := attributevalue.UnmarshalMap(result.Item, &call); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call request: %w", err)
	}
	return &call, nil
}

func (s *DynamoStore) ListPending(ctx context.Context) ([]*types.CallRequest, error) {
	return s.scanCalls(ctx, expression.Name("Status").Equal(expression.Value(string(types.CallStatusPending))))
}

func (s *DynamoStore) ListByAgent(ctx context.Context, agentID string) ([]*types.CallRequest, error) {
	filter := expression.Name("AssignedAgentID").Equal(expression.Value(agentID)).
		And(expression.Name("Status").In(
			expression.Value(string(types.CallStatusAssigned)),
			expression.Value(string(types.CallStatusInProgress)),
		))
	return s.scanCalls(ctx, filter)
}

// scanCalls scans the calls table with a filter. Queue depth is bounded by
// the rate humans complete verifications, so a filtered scan is acceptable;
// a GSI on Status would serve larger deployments.
func (s *DynamoStore) scanCalls(ctx context.Context, filter expression.ConditionBuilder) ([]*types.CallRequest, error) {
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var calls []*types.CallRequest
	var lastKey map[string]dbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(s.config.CallsTable),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, storageErr("failed to scan call requests", err)
		}

		var page []*types.CallRequest
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal call requests: %w", err)
		}
		calls = append(calls, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	return calls, nil
}

func (s *DynamoStore) TransitionCall(ctx context.Context, id string, from, to types.CallStatus, mutate func(*types.CallRequest)) (*types.CallRequest, error) {
	call, err := s.GetCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if call.Status != from {
		return nil, ErrRequestNotEligible
	}

	call.Status = to
	if mutate != nil {
		mutate(call)
	}

	item, err := attributevalue.MarshalMap(call)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call request: %w", err)
	}

	// The conditional put is the compare-and-set: it commits only if the
	// stored status is still `from`.
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.CallsTable),
		Item:                item,
		ConditionExpression: aws.String("#st = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#st": "Status",
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":expected": &dbtypes.AttributeValueMemberS{Value: string(from)},
		},
	})
	if err != nil {
		var condErr *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrRequestNotEligible
		}
		return nil, storageErr("failed to transition call request", err)
	}

	return call, nil
}

func (s *DynamoStore) EscalateCall(ctx context.Context, id string, from types.Priority) (*types.CallRequest, error) {
	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.CallsTable),
		Key: map[string]dbtypes.AttributeValue{
			"ID": &dbtypes.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #prio = :next ADD EscalationCount :one"),
		ConditionExpression: aws.String("#st = :pending AND #prio = :from"),
		ExpressionAttributeNames: map[string]string{
			"#st":   "Status",
			"#prio": "Priority",
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":pending": &dbtypes.AttributeValueMemberS{Value: string(types.CallStatusPending)},
			":from":    &dbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", int(from))},
			":next":    &dbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", int(from.Escalate()))},
			":one":     &dbtypes.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: dbtypes.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrRequestNotEligible
		}
		return nil, storageErr("failed to escalate call request", err)
	}

	var call types.CallRequest
	if err := attributevalue.UnmarshalMap(result.Attributes, &call); err != nil {
		return nil, fmt.Errorf("failed to unmarshal escalated call: %w", err)
	}
	return &call, nil
}

func (s *DynamoStore) SaveCallRecord(ctx context.Context, record types.CallRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.CallRecordsTable),
		Item:      item,
	})
	if err != nil {
		return storageErr("failed to save call record", err)
	}
	return nil
}

func (s *DynamoStore) GetCallRecords(ctx context.Context, dateKey string) ([]types.CallRecord, error) {
	keyCond := expression.Key("DateKey").Equal(expression.Value(dateKey))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.CallRecordsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, storageErr("failed to query call records", err)
	}

	var records []types.CallRecord
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call records: %w", err)
	}
	return records, nil
}

func (s *DynamoStore) GetAgentCalls(ctx context.Context, agentID, dateKey string) ([]types.CallRecord, error) {
	keyCond := expression.Key("DateKey").Equal(expression.Value(dateKey))
	filter := expression.Name("AgentID").Equal(expression.Value(agentID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.CallRecordsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, storageErr("failed to query agent calls", err)
	}

	var records []types.CallRecord
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call records: %w", err)
	}
	return records, nil
}
