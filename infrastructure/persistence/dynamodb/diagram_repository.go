// Package dynamodb stores diagrams in a single DynamoDB table.
//
// Key layout:
//
//	PK      DIAGRAM#<id>
//	SK      META
//	GSI1PK  OWNER#<ownerId>
//	GSI1SK  UPDATED#<RFC3339 updatedAt>#<id>
//
// The model is stored as a JSON string so node and edge payloads keep their
// wire shape.
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

const (
	entityType   = "DIAGRAM"
	metaSK       = "META"
	batchSize    = 25
	maxRetries   = 3
	timeLayout   = time.RFC3339Nano
	defaultIndex = "GSI1"
)

// DBClient is the subset of the DynamoDB API the repository uses
type DBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DiagramRepository implements ports.DiagramRepository on DynamoDB
type DiagramRepository struct {
	client    DBClient
	tableName string
	indexName string
	logger    *zap.Logger
}

var _ ports.DiagramRepository = (*DiagramRepository)(nil)

// NewDiagramRepository creates a repository for tableName; indexName is the owner GSI
func NewDiagramRepository(client DBClient, tableName, indexName string, logger *zap.Logger) *DiagramRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if indexName == "" {
		indexName = defaultIndex
	}
	return &DiagramRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

// diagramItem represents the DynamoDB item structure for a diagram
type diagramItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	GSI1PK      string `dynamodbav:"GSI1PK"`
	GSI1SK      string `dynamodbav:"GSI1SK"`
	EntityType  string `dynamodbav:"EntityType"`
	DiagramID   string `dynamodbav:"DiagramID"`
	OwnerID     string `dynamodbav:"OwnerID"`
	Name        string `dynamodbav:"Name"`
	Description string `dynamodbav:"Description"`
	Model       string `dynamodbav:"Model"`
	NodeCount   int    `dynamodbav:"NodeCount"`
	EdgeCount   int    `dynamodbav:"EdgeCount"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
	Version     int    `dynamodbav:"Version"`
}

func diagramPK(id valueobjects.DiagramID) string { return "DIAGRAM#" + id.String() }
func ownerPK(ownerID string) string             { return "OWNER#" + ownerID }
func ownerSK(updatedAt time.Time, id valueobjects.DiagramID) string {
	return "UPDATED#" + updatedAt.UTC().Format(timeLayout) + "#" + id.String()
}

func itemKey(id valueobjects.DiagramID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: diagramPK(id)},
		"SK": &types.AttributeValueMemberS{Value: metaSK},
	}
}

func toItem(d *aggregates.Diagram) (diagramItem, error) {
	model, err := json.Marshal(d.Model)
	if err != nil {
		return diagramItem{}, fmt.Errorf("failed to encode model: %w", err)
	}
	return diagramItem{
		PK:          diagramPK(d.ID),
		SK:          metaSK,
		GSI1PK:      ownerPK(d.OwnerID),
		GSI1SK:      ownerSK(d.UpdatedAt, d.ID),
		EntityType:  entityType,
		DiagramID:   d.ID.String(),
		OwnerID:     d.OwnerID,
		Name:        d.Name,
		Description: d.Description,
		Model:       string(model),
		NodeCount:   d.Model.NodeCount(),
		EdgeCount:   d.Model.EdgeCount(),
		CreatedAt:   d.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:   d.UpdatedAt.UTC().Format(timeLayout),
		Version:     d.Version,
	}, nil
}

func (it diagramItem) toDiagram() (*aggregates.Diagram, error) {
	model := aggregates.NewModel()
	if it.Model != "" {
		if err := json.Unmarshal([]byte(it.Model), &model); err != nil {
			return nil, fmt.Errorf("failed to decode model of %s: %w", it.DiagramID, err)
		}
	}
	created, _ := time.Parse(timeLayout, it.CreatedAt)
	updated, _ := time.Parse(timeLayout, it.UpdatedAt)
	return &aggregates.Diagram{
		ID:          valueobjects.DiagramID(it.DiagramID),
		OwnerID:     it.OwnerID,
		Name:        it.Name,
		Description: it.Description,
		Model:       aggregates.NewModel().Replace(model),
		CreatedAt:   created,
		UpdatedAt:   updated,
		Version:     it.Version,
	}, nil
}

// Save creates or updates a diagram with optimistic locking on Version
func (r *DiagramRepository) Save(ctx context.Context, diagram *aggregates.Diagram) error {
	item, err := toItem(diagram)
	if err != nil {
		return pkgerrors.NewInternal("marshal diagram", err)
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.NewInternal("marshal diagram", err)
	}

	var condition expression.ConditionBuilder
	if diagram.Version > 1 {
		condition = expression.Name("Version").LessThan(expression.Value(diagram.Version))
	} else {
		condition = expression.Name("PK").AttributeNotExists()
	}
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return pkgerrors.NewInternal("build expression", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewConflict(fmt.Sprintf("diagram %s was modified concurrently", diagram.ID))
		}
		return r.fail("PutItem", diagram.ID, err)
	}

	r.logger.Debug("Diagram saved",
		zap.String("diagramID", diagram.ID.String()),
		zap.Int("version", diagram.Version),
	)
	return nil
}

// Get loads a diagram by id
func (r *DiagramRepository) Get(ctx context.Context, id valueobjects.DiagramID) (*aggregates.Diagram, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(id),
	})
	if err != nil {
		return nil, r.fail("GetItem", id, err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFound("diagram " + id.String() + " not found")
	}

	var item diagramItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewInternal("unmarshal diagram", err)
	}
	d, err := item.toDiagram()
	if err != nil {
		return nil, pkgerrors.NewInternal("decode diagram", err)
	}
	return d, nil
}

// ListByOwner queries the owner index, newest first, following pagination
func (r *DiagramRepository) ListByOwner(ctx context.Context, ownerID string) ([]*aggregates.Diagram, error) {
	keyExpr := expression.Key("GSI1PK").Equal(expression.Value(ownerPK(ownerID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, pkgerrors.NewInternal("build expression", err)
	}

	out := make([]*aggregates.Diagram, 0)
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			IndexName:                 aws.String(r.indexName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, r.fail("Query", "", err)
		}

		var items []diagramItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
			return nil, pkgerrors.NewInternal("unmarshal diagrams", err)
		}
		for _, it := range items {
			d, err := it.toDiagram()
			if err != nil {
				r.logger.Warn("Skipping undecodable diagram", zap.String("diagramID", it.DiagramID), zap.Error(err))
				continue
			}
			out = append(out, d)
		}

		if len(result.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// SaveModel overwrites the model of an existing diagram; the last writer wins
func (r *DiagramRepository) SaveModel(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model) error {
	data, err := json.Marshal(model)
	if err != nil {
		return pkgerrors.NewInternal("encode model", err)
	}
	now := time.Now().UTC()

	update := expression.Set(expression.Name("Model"), expression.Value(string(data))).
		Set(expression.Name("NodeCount"), expression.Value(model.NodeCount())).
		Set(expression.Name("EdgeCount"), expression.Value(model.EdgeCount())).
		Set(expression.Name("UpdatedAt"), expression.Value(now.Format(timeLayout))).
		Set(expression.Name("GSI1SK"), expression.Value(ownerSK(now, id))).
		Set(expression.Name("Version"), expression.Name("Version").Plus(expression.Value(1)))
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return pkgerrors.NewInternal("build expression", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       itemKey(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFound("diagram " + id.String() + " not found")
		}
		return r.fail("UpdateItem", id, err)
	}
	return nil
}

// Delete removes a diagram; a missing diagram is a NotFound error
func (r *DiagramRepository) Delete(ctx context.Context, id valueobjects.DiagramID) error {
	expr, err := expression.NewBuilder().WithCondition(expression.Name("PK").AttributeExists()).Build()
	if err != nil {
		return pkgerrors.NewInternal("build expression", err)
	}
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       itemKey(id),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFound("diagram " + id.String() + " not found")
		}
		return r.fail("DeleteItem", id, err)
	}
	return nil
}

// DeleteBatch removes diagrams in BatchWriteItem chunks of 25, retrying unprocessed items
func (r *DiagramRepository) DeleteBatch(ctx context.Context, ids []valueobjects.DiagramID) error {
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, id := range ids[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: itemKey(id)},
			})
		}
		if err := r.writeBatch(ctx, requests); err != nil {
			return err
		}
	}

	r.logger.Debug("Diagrams deleted", zap.Int("count", len(ids)))
	return nil
}

func (r *DiagramRepository) writeBatch(ctx context.Context, requests []types.WriteRequest) error {
	unprocessed := requests
	for retry := 0; retry <= maxRetries && len(unprocessed) > 0; retry++ {
		if retry > 0 {
			backoffDuration := time.Duration(retry*retry) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		result, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.tableName: unprocessed},
		})
		if err != nil {
			r.logger.Warn("Batch write failed, retrying", zap.Error(err), zap.Int("retry", retry+1))
			if retry == maxRetries {
				return r.fail("BatchWriteItem", "", err)
			}
			continue
		}
		unprocessed = result.UnprocessedItems[r.tableName]
	}

	if len(unprocessed) > 0 {
		return pkgerrors.NewRemote(fmt.Sprintf("%d deletes left unprocessed", len(unprocessed)), nil)
	}
	return nil
}

// fail logs a DynamoDB error with its API code and wraps it as a remote error
func (r *DiagramRepository) fail(op string, id valueobjects.DiagramID, err error) error {
	fields := []zap.Field{zap.String("operation", op), zap.Error(err)}
	if !id.IsZero() {
		fields = append(fields, zap.String("diagramID", id.String()))
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		fields = append(fields, zap.String("errorCode", ae.ErrorCode()))
	}
	r.logger.Error("DynamoDB operation failed", fields...)
	return pkgerrors.NewRemote("dynamodb "+op, err)
}
