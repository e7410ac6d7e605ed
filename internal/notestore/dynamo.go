package notestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/internal/telemetry/tracing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

var _ notes.NoteStore = (*DynamoStore)(nil)

// dynamoAPI is the part of the DynamoDB client the store uses.
type dynamoAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// noteItem is a note in the single table layout:
// PK=OWNER#<owner>, SK=NOTE#<id>. Ids are UUIDv7, so SK order is creation order.
type noteItem struct {
	PK          string    `dynamodbav:"PK"`
	SK          string    `dynamodbav:"SK"`
	ID          string    `dynamodbav:"id"`
	Owner       string    `dynamodbav:"owner"`
	Name        *string   `dynamodbav:"name"`
	Description *string   `dynamodbav:"description"`
	Image       *string   `dynamodbav:"image,omitempty"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

func (i noteItem) toNote() notes.Note {
	owner := i.Owner
	return notes.Note{
		ID:          i.ID,
		Name:        i.Name,
		Description: i.Description,
		Image:       i.Image,
		Owner:       &owner,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func ownerPK(owner string) string {
	return "OWNER#" + owner
}

func noteSK(id string) string {
	return "NOTE#" + id
}

type DynamoStore struct {
	client    dynamoAPI
	tableName string

	newID   func() (string, error)
	nowFunc func() time.Time
}

func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		nowFunc: time.Now,
	}
}

// List queries all pages of the owner's partition, newest first.
func (s *DynamoStore) List(ctx context.Context, session *auth.Session) (_ []notes.Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dynamoStore.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	keyCond := expression.Key("PK").Equal(expression.Value(ownerPK(session.Owner))).
		And(expression.Key("SK").BeginsWith("NOTE#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})

	list := []notes.Note{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query notes: %w", err)
		}

		var items []noteItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal notes: %w", err)
		}
		for _, item := range items {
			list = append(list, item.toNote())
		}
	}

	return list, nil
}

func (s *DynamoStore) Create(ctx context.Context, session *auth.Session, newNote notes.NewNote) (_ *notes.Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dynamoStore.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("new note id: %w", err)
	}

	name, description := newNote.Name, newNote.Description
	now := s.nowFunc().UTC()
	item := noteItem{
		PK:          ownerPK(session.Owner),
		SK:          noteSK(id),
		ID:          id,
		Owner:       session.Owner,
		Name:        &name,
		Description: &description,
		Image:       newNote.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("marshal note: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build expression: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("put note %s: %w", id, ErrNoteExists)
		}
		return nil, fmt.Errorf("put note: %w", err)
	}

	note := item.toNote()
	return &note, nil
}

// Delete removes the note only if it exists in the owner's partition.
func (s *DynamoStore) Delete(ctx context.Context, session *auth.Session, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dynamoStore.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return fmt.Errorf("build expression: %w", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: ownerPK(session.Owner)},
			"SK": &types.AttributeValueMemberS{Value: noteSK(id)},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNoteNotFound
		}
		return fmt.Errorf("delete note: %w", err)
	}

	return nil
}
