package billing_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/creditledger/svc/billing"
)

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func archiveEvent() billing.Event {
	return billing.Event{
		ID:           "evt_1",
		Provider:     "stripe",
		ProviderType: "invoice.paid",
		OccurredAt:   time.Date(2026, time.March, 7, 23, 0, 0, 0, time.UTC),
		Raw:          []byte(`{"id":"evt_1"}`),
	}
}

func TestNewS3Archive_Validates(t *testing.T) {
	t.Parallel()
	_, err := billing.NewS3Archive(context.Background(), billing.S3ArchiveConfig{Region: "us-east-1"})
	assert.ErrorIs(t, err, billing.ErrInvalidArchiveConfig)
	assert.False(t, billing.S3ArchiveConfig{}.Enabled())
}

func TestS3Archive_Store(t *testing.T) {
	t.Parallel()
	client := &MockS3Client{}
	a, err := billing.NewS3Archive(context.Background(),
		billing.S3ArchiveConfig{Bucket: "audit", Region: "us-east-1", Prefix: "/billing-events/"},
		billing.WithArchiveClient(client),
	)
	require.NoError(t, err)

	ev := archiveEvent()
	assert.Equal(t, "billing-events/stripe/2026/03/07/evt_1.json", a.Key(ev))

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "audit" &&
			aws.ToString(in.Key) == "billing-events/stripe/2026/03/07/evt_1.json" &&
			aws.ToString(in.ContentType) == "application/json" &&
			in.Metadata["event-type"] == "invoice.paid" &&
			string(body) == `{"id":"evt_1"}`
	}), mock.Anything).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, a.Store(context.Background(), ev))
	client.AssertExpectations(t)

	// Events without a raw payload are not archived.
	require.NoError(t, a.Store(context.Background(), billing.Event{ID: "evt_2"}))
	client.AssertNumberOfCalls(t, "PutObject", 1)
}

func TestS3Archive_StoreError(t *testing.T) {
	t.Parallel()
	client := &MockS3Client{}
	a, err := billing.NewS3Archive(context.Background(),
		billing.S3ArchiveConfig{Bucket: "audit", Region: "us-east-1"},
		billing.WithArchiveClient(client),
	)
	require.NoError(t, err)

	client.On("PutObject", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}).Once()

	err = a.Store(context.Background(), archiveEvent())
	require.ErrorIs(t, err, billing.ErrArchiveFailed)
	assert.Contains(t, err.Error(), "AccessDenied")
}
