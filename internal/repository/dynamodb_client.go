package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"udon-bot/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client archives completed turns to a DynamoDB table. Archived turns are
// never read back into the live conversation.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{
		api:       api,
		tableName: tableName,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// userPK returns the DynamoDB partition key for a LINE user.
func userPK(userID string) string {
	return "USER#" + userID
}

// turnSK orders turns chronologically; the id keeps same-instant writes distinct.
func turnSK(ts time.Time, turnID string) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano) + "#" + turnID
}

// SaveTurn writes one archived turn.
func (c *Client) SaveTurn(ctx context.Context, turn domain.Turn) error {
	if turn.PK == "" || turn.SK == "" {
		return errors.New("repository: SaveTurn: PK and SK are required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

// SaveCompletedTurn archives a finished user/assistant exchange.
func (c *Client) SaveCompletedTurn(ctx context.Context, userID, displayName, question, answer string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: SaveCompletedTurn: user id is required")
	}
	turn := c.NewTurn(userID, displayName, question, answer)
	if err := c.SaveTurn(ctx, turn); err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn: %w", err)
	}
	return nil
}

// NewTurn constructs a Turn with PK/SK/TTL derived from userID and the current time.
func (c *Client) NewTurn(userID, displayName, question, answer string) domain.Turn {
	now := c.now().UTC()
	id := c.newID()
	return domain.Turn{
		PK:          userPK(userID),
		SK:          turnSK(now, id),
		TurnID:      id,
		UserID:      userID,
		DisplayName: displayName,
		Text:        question,
		Answer:      answer,
		TTL:         now.Add(ttlDuration).Unix(),
	}
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: turn.PK},
		"SK":          &types.AttributeValueMemberS{Value: turn.SK},
		"turnId":      &types.AttributeValueMemberS{Value: turn.TurnID},
		"userId":      &types.AttributeValueMemberS{Value: turn.UserID},
		"displayName": &types.AttributeValueMemberS{Value: turn.DisplayName},
		"text":        &types.AttributeValueMemberS{Value: turn.Text},
		"answer":      &types.AttributeValueMemberS{Value: turn.Answer},
		"ttl":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", turn.TTL)},
	}
}
