package jobs

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"agentpay/internal/services"
	"agentpay/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UsageExporter writes periodic usage reports as CSV objects to object
// storage for offline billing reconciliation.
type UsageExporter struct {
	store  storage.Backend
	usage  services.UsageService
	client *minio.Client
	bucket string
}

// NewUsageExporter creates a new UsageExporter instance
func NewUsageExporter(store storage.Backend, usage services.UsageService, endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*UsageExporter, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &UsageExporter{store: store, usage: usage, client: client, bucket: bucket}, nil
}

// EnsureBucketExists creates the report bucket when missing.
func (e *UsageExporter) EnsureBucketExists(ctx context.Context) error {
	found, err := e.client.BucketExists(ctx, e.bucket)
	if err != nil {
		return err
	}
	if !found {
		return e.client.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Export writes one CSV covering [start, end] for every user that has a
// subscription row, keyed by export date.
func (e *UsageExporter) Export(ctx context.Context, start, end time.Time) error {
	subs, err := e.store.ListSubscriptions(ctx)
	if err != nil {
		return err
	}

	users := make(map[string]struct{})
	for _, sub := range subs {
		users[sub.UserID] = struct{}{}
	}
	userIDs := make([]string, 0, len(users))
	for id := range users {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"user_id", "feature", "timestamp", "cost", "currency"}); err != nil {
		return err
	}
	for _, userID := range userIDs {
		records, err := e.usage.GetUserUsage(ctx, userID, &start, &end)
		if err != nil {
			return err
		}
		for _, record := range records {
			row := []string{
				record.UserID,
				record.Feature,
				record.Timestamp.Format(time.RFC3339),
				strconv.FormatFloat(record.CostOrZero(), 'f', 2, 64),
				record.Currency,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	objectName := fmt.Sprintf("usage-%s.csv", end.Format("2006-01-02"))
	_, err = e.client.PutObject(ctx, e.bucket, objectName, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return err
	}
	log.Printf("Exported usage report %s (%d users)", objectName, len(userIDs))
	return nil
}

// ExportLastDay exports the trailing 24 hours.
func (e *UsageExporter) ExportLastDay(ctx context.Context) error {
	end := time.Now().UTC()
	return e.Export(ctx, end.Add(-24*time.Hour), end)
}
