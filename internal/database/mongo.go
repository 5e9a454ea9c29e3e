package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

// DefaultMongoDatabase は接続URIにデータベース名がない場合に使用する名前。
const DefaultMongoDatabase = "passgate"

// MongoDatabaseName は接続URIのパスからデータベース名を取り出す。
// 省略されている場合はDefaultMongoDatabaseを返す。
func MongoDatabaseName(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse mongo uri: %w", err)
	}
	if cs.Database == "" {
		return DefaultMongoDatabase, nil
	}
	return cs.Database, nil
}

// OpenMongo はMongoDBに接続し、URIで指定されたデータベースを返す。
// 接続確認のためPingを実行し、失敗した場合はクライアントを切断してエラーを返す。
func OpenMongo(ctx context.Context, uri string) (*mongo.Client, *mongo.Database, error) {
	name, err := MongoDatabaseName(uri)
	if err != nil {
		return nil, nil, err
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return client, client.Database(name), nil
}

// MongoPinger はmongo.ClientをPingContextインターフェースに合わせるアダプタ。
type MongoPinger struct {
	Client *mongo.Client
}

// PingContext はプライマリへの疎通を確認する。
func (p MongoPinger) PingContext(ctx context.Context) error {
	return p.Client.Ping(ctx, nil)
}
