package dbclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/frankawp/data-pipeline-builder/internal/domain"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// OpenMongo connects to MongoDB and pings the primary. It returns the client
// and the database name resolved from conn or the URI path.
func OpenMongo(ctx context.Context, conn *domain.DatabaseConnection, password string) (*mongo.Client, string, error) {
	uri := MongoURI(conn, password)
	dbName := conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}

	slog.Debug("connecting to mongodb", "uri", maskPassword(uri, password), "database", dbName)
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(pingTimeout))
	if err != nil {
		return nil, "", fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		DisconnectMongo(client)
		return nil, "", fmt.Errorf("ping mongo: %w", err)
	}
	return client, dbName, nil
}

// DisconnectMongo closes the client with a short timeout.
func DisconnectMongo(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		slog.Warn("mongo disconnect failed", "error", err)
	}
}

// MongoURI builds the connection URI. A Host that already is a mongodb:// or
// mongodb+srv:// URI is used as is, with <password> placeholders filled in.
func MongoURI(conn *domain.DatabaseConnection, password string) string {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", url.QueryEscape(password))
			uri = strings.ReplaceAll(uri, "<db_password>", url.QueryEscape(password))
		}
		return uri
	}

	u := &url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%d", conn.Host, portOrDefault(conn)),
		Path:   "/",
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}
	if len(conn.Extra) > 0 {
		keys := make([]string, 0, len(conn.Extra))
		for k := range conn.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		q := url.Values{}
		for _, k := range keys {
			q.Set(k, conn.Extra[k])
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// databaseFromURI extracts the path segment of user:pass@host/DB?params,
// defaulting to "test" like the mongo shell.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		rest = strings.TrimPrefix(rest, prefix)
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	if slash := strings.Index(rest, "/"); slash != -1 {
		path := rest[slash+1:]
		if q := strings.Index(path, "?"); q != -1 {
			path = path[:q]
		}
		if path != "" {
			return path
		}
	}
	return "test"
}

func maskPassword(uri, password string) string {
	if password == "" {
		return uri
	}
	uri = strings.ReplaceAll(uri, url.QueryEscape(password), "***")
	return strings.ReplaceAll(uri, password, "***")
}
