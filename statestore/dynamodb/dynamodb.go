// Package dynamodb stores work item review state in an Amazon DynamoDB table.
//
// Table schema:
//   - Partition key: work_list (string)
//   - Sort key: item (string) - "tableId#rowId", or "#current" for the current item
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name worklist-state \
//	  --attribute-definitions AttributeName=work_list,AttributeType=S AttributeName=item,AttributeType=S \
//	  --key-schema AttributeName=work_list,KeyType=HASH AttributeName=item,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/statestore"
)

const (
	attrWorkList = "work_list"
	attrItem     = "item"
	attrStatus   = "status"
	attrVisited  = "visited"
	attrRef      = "ref"

	currentItem = "#current"

	// batchSize is the BatchWriteItem request limit.
	batchSize = 25
	// maxRetries bounds resubmission of unprocessed items.
	maxRetries = 5
)

// ErrUnprocessed is returned when DynamoDB keeps rejecting part of a batch.
var ErrUnprocessed = errors.New("unprocessed items remain after retries")

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Store implements statestore.Store on a DynamoDB table.
type Store struct {
	client    DDBClient
	tableName string
}

// New creates a Store writing to tableName.
func New(client DDBClient, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func (s *Store) query(ctx context.Context, workList string) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("work_list = :wl"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":wl": &types.AttributeValueMemberS{Value: workList},
		},
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// Load implements statestore.Store.
func (s *Store) Load(ctx context.Context, workList string) (statestore.Document, error) {
	if err := statestore.ValidateName(workList); err != nil {
		return statestore.Document{}, err
	}

	items, err := s.query(ctx, workList)
	if err != nil {
		return statestore.Document{}, err
	}

	doc := statestore.NewDocument()
	for _, item := range items {
		key, ok := item[attrItem].(*types.AttributeValueMemberS)
		if !ok {
			return statestore.Document{}, errors.New("invalid item attribute in DynamoDB")
		}

		if key.Value == currentItem {
			ref, ok := item[attrRef].(*types.AttributeValueMemberS)
			if !ok {
				return statestore.Document{}, errors.New("invalid ref attribute in DynamoDB")
			}
			id, err := parseKey(ref.Value)
			if err != nil {
				return statestore.Document{}, err
			}
			doc.Current = &id
			continue
		}

		id, err := parseKey(key.Value)
		if err != nil {
			return statestore.Document{}, err
		}
		status, ok := item[attrStatus].(*types.AttributeValueMemberS)
		if !ok {
			return statestore.Document{}, errors.New("invalid status attribute in DynamoDB")
		}
		st, err := model.ParseStatus(status.Value)
		if err != nil {
			return statestore.Document{}, err
		}
		var visited bool
		if v, ok := item[attrVisited].(*types.AttributeValueMemberBOOL); ok {
			visited = v.Value
		}
		doc.States[id] = statestore.State{Status: st, Visited: visited}
	}

	return doc, nil
}

// Save implements statestore.Store. Items no longer in doc are deleted.
// The write is not atomic across batches.
func (s *Store) Save(ctx context.Context, workList string, doc statestore.Document) error {
	if err := statestore.ValidateName(workList); err != nil {
		return err
	}

	existing, err := s.query(ctx, workList)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(doc.States)+1)
	var writes []types.WriteRequest

	for _, e := range doc.Entries() {
		key := formatKey(e.Identity())
		keep[key] = true
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{
			Item: map[string]types.AttributeValue{
				attrWorkList: &types.AttributeValueMemberS{Value: workList},
				attrItem:     &types.AttributeValueMemberS{Value: key},
				attrStatus:   &types.AttributeValueMemberS{Value: e.Status},
				attrVisited:  &types.AttributeValueMemberBOOL{Value: e.Visited},
			},
		}})
	}

	if doc.Current != nil {
		keep[currentItem] = true
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{
			Item: map[string]types.AttributeValue{
				attrWorkList: &types.AttributeValueMemberS{Value: workList},
				attrItem:     &types.AttributeValueMemberS{Value: currentItem},
				attrRef:      &types.AttributeValueMemberS{Value: formatKey(*doc.Current)},
			},
		}})
	}

	for _, item := range existing {
		key, ok := item[attrItem].(*types.AttributeValueMemberS)
		if !ok || keep[key.Value] {
			continue
		}
		writes = append(writes, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{
				attrWorkList: &types.AttributeValueMemberS{Value: workList},
				attrItem:     &types.AttributeValueMemberS{Value: key.Value},
			},
		}})
	}

	for start := 0; start < len(writes); start += batchSize {
		end := min(start+batchSize, len(writes))
		if err := s.batchWrite(ctx, writes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) batchWrite(ctx context.Context, writes []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.tableName: writes}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to write to DynamoDB: %w", err)
		}
		if len(out.UnprocessedItems[s.tableName]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return ErrUnprocessed
}

func formatKey(id model.Identity) string {
	return strconv.FormatInt(id.TableID, 10) + "#" + strconv.FormatInt(id.RowID, 10)
}

func parseKey(s string) (model.Identity, error) {
	table, row, ok := strings.Cut(s, "#")
	if !ok {
		return model.Identity{}, fmt.Errorf("invalid item key %q", s)
	}
	t, err := strconv.ParseInt(table, 10, 64)
	if err != nil {
		return model.Identity{}, fmt.Errorf("invalid item key %q: %w", s, err)
	}
	r, err := strconv.ParseInt(row, 10, 64)
	if err != nil {
		return model.Identity{}, fmt.Errorf("invalid item key %q: %w", s, err)
	}
	return model.Identity{TableID: t, RowID: r}, nil
}
