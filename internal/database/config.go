package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	appConfig "github.com/imyashkale/fleetctl/internal/config"
	"github.com/imyashkale/fleetctl/internal/logger"
)

// ErrNotConfigured is returned when no audit table name is configured
var ErrNotConfigured = errors.New("audit table not configured")

// DynamoDBAPI is the subset of the DynamoDB client used by this package
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Config holds the DynamoDB configuration
type Config struct {
	TableName string
	Region    string
}

// Client wraps the DynamoDB client
type Client struct {
	DynamoDB  DynamoDBAPI
	TableName string
}

// NewConfig creates a new database configuration from the application config
func NewConfig(appCfg *appConfig.Config) *Config {
	return &Config{
		TableName: appCfg.AuditTableName,
		Region:    appCfg.AWSRegion,
	}
}

// NewClient creates a new DynamoDB client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg.TableName == "" {
		return nil, ErrNotConfigured
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	client := &Client{
		DynamoDB:  dynamodb.NewFromConfig(awsCfg),
		TableName: cfg.TableName,
	}

	if err := client.ensureTableExists(ctx); err != nil {
		logger.WithField("error", err.Error()).Warn("Could not verify audit table existence")
	}

	return client, nil
}

// ensureTableExists checks if the DynamoDB table exists
func (c *Client) ensureTableExists(ctx context.Context) error {
	_, err := c.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.TableName),
	})
	if err != nil {
		return fmt.Errorf("table %s does not exist or cannot be accessed: %w", c.TableName, err)
	}

	logger.WithField("table", c.TableName).Info("DynamoDB table verified successfully")
	return nil
}
