package s3

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

type upload struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

type fakeUploader struct {
	uploads []upload
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, upload{
		bucket:      aws.ToString(input.Bucket),
		key:         aws.ToString(input.Key),
		contentType: aws.ToString(input.ContentType),
		body:        body,
	})
	return &manager.UploadOutput{}, nil
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(Config{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestSink_Publish(t *testing.T) {
	uploader := &fakeUploader{}
	sink := NewWithUploader(uploader, "ledger-events", "archive")

	key, err := contentledger.ParseContentKey("42474d87-5500-590a-ae99-872023f3b83a")
	require.NoError(t, err)
	event := contentledger.AccessPolicyChangeEvent("bob", key, contentledger.ContentLeaseAssigned)
	event.Sequence = 12
	event.Index = 1

	require.NoError(t, sink.Publish(context.Background(), event))
	require.Len(t, uploader.uploads, 1)

	got := uploader.uploads[0]
	assert.Equal(t, "ledger-events", got.bucket)
	assert.Equal(t, "archive/00000000000000000012/0001-access_policy_change.json", got.key)
	assert.Equal(t, "application/json", got.contentType)

	var decoded contentledger.Event
	require.NoError(t, json.Unmarshal(got.body, &decoded))
	assert.Equal(t, event, decoded)
}

func TestSink_ObjectKeysSortInLedgerOrder(t *testing.T) {
	sink := NewWithUploader(&fakeUploader{}, "b", "")
	first := sink.ObjectKey(contentledger.Event{Kind: contentledger.EventCreateContentKey, Sequence: 9, Index: 1})
	second := sink.ObjectKey(contentledger.Event{Kind: contentledger.EventAccessPolicyChange, Sequence: 10, Index: 0})
	assert.Less(t, first, second)
	assert.Equal(t, "00000000000000000009/0001-create_content_key.json", first)
}

func TestSink_PublishError(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		apiErr := &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "bucket missing"}
		sink := NewWithUploader(&fakeUploader{err: apiErr}, "b", "p")

		err := sink.Publish(context.Background(), contentledger.SomethingStoredEvent(1, "alice"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NoSuchBucket")
		assert.ErrorIs(t, err, apiErr)
	})

	t.Run("transport error", func(t *testing.T) {
		cause := errors.New("connection reset")
		sink := NewWithUploader(&fakeUploader{err: cause}, "b", "p")

		err := sink.Publish(context.Background(), contentledger.SomethingStoredEvent(1, "alice"))
		assert.ErrorIs(t, err, cause)
	})
}
