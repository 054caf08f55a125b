package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"medexpense/internal/receipt"
)

// mockBatch is a mock implementation of BatchClient.
type mockBatch struct {
	jobID          string
	submitted      []BatchItem
	submitErr      error
	pollsUntilDone int
	polls          int
	pollErr        error
	outcomes       []BatchOutcome
	resultsErr     error
	canceled       bool
	closed         bool
}

func (m *mockBatch) SubmitBatch(ctx context.Context, items []BatchItem) (string, error) {
	if m.submitErr != nil {
		return "", m.submitErr
	}
	m.submitted = items
	return m.jobID, nil
}

func (m *mockBatch) BatchDone(ctx context.Context, jobID string) (bool, error) {
	if m.pollErr != nil {
		return false, m.pollErr
	}
	m.polls++
	return m.polls > m.pollsUntilDone, nil
}

func (m *mockBatch) BatchResults(ctx context.Context, jobID string) ([]BatchOutcome, error) {
	if m.resultsErr != nil {
		return nil, m.resultsErr
	}
	return m.outcomes, nil
}

func (m *mockBatch) CancelBatch(ctx context.Context, jobID string) error {
	m.canceled = true
	return nil
}

func (m *mockBatch) Close() error {
	m.closed = true
	return nil
}

var _ = Describe("Batch", func() {
	var (
		client *mockBatch
		ctx    context.Context
	)

	BeforeEach(func() {
		client = &mockBatch{jobID: "batch-123"}
		ctx = context.Background()
	})

	When("the job returns a mix of outcomes", func() {
		var images []Image

		BeforeEach(func() {
			images = []Image{
				pngImage("a.jpg"), pngImage("b.jpg"), pngImage("c.jpg"),
				pngImage("d.jpg"), pngImage("e.jpg"),
			}
			client.pollsUntilDone = 2
			client.outcomes = []BatchOutcome{
				{CustomID: "img-0000", Text: okResponse},
				{CustomID: "img-0001", Err: errors.New("batch item img-0001: errored")},
				{CustomID: "img-0002", Text: okResponse},
				{CustomID: "img-0003", Err: errors.New("batch item img-0003: expired")},
				{CustomID: "img-0004", Text: okResponse},
			}
		})

		It("maps every outcome back to its input position", func() {
			b := NewBatch(client, time.Millisecond, time.Second)

			records, err := b.Extract(ctx, images)
			Expect(err).ToNot(HaveOccurred())
			Expect(records).To(HaveLen(5))

			for i, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"} {
				Expect(records[i].SourceFile).To(Equal(name))
			}
			Expect(records[0].Status).To(Equal(receipt.StatusSuccess))
			Expect(records[1].Status).To(Equal(receipt.StatusFailure))
			Expect(records[2].Status).To(Equal(receipt.StatusSuccess))
			Expect(records[3].Status).To(Equal(receipt.StatusFailure))
			Expect(records[4].Status).To(Equal(receipt.StatusSuccess))
		})

		It("submits one item per image with positional IDs", func() {
			b := NewBatch(client, time.Millisecond, time.Second)

			_, err := b.Extract(ctx, images)
			Expect(err).ToNot(HaveOccurred())
			Expect(client.submitted).To(HaveLen(5))
			for i, item := range client.submitted {
				Expect(item.CustomID).To(Equal(fmt.Sprintf("img-%04d", i)))
			}
		})

		It("keeps polling until the job ends", func() {
			b := NewBatch(client, time.Millisecond, time.Second)

			_, err := b.Extract(ctx, images)
			Expect(err).ToNot(HaveOccurred())
			Expect(client.polls).To(Equal(3))
		})
	})

	When("the job answers for only some items", func() {
		It("leaves the unanswered ones as failure records", func() {
			client.outcomes = []BatchOutcome{
				{CustomID: "img-0000", Text: okResponse},
				{CustomID: "img-9999", Text: okResponse}, // not ours
			}
			b := NewBatch(client, time.Millisecond, time.Second)

			records, err := b.Extract(ctx, []Image{
				pngImage("a.jpg"), pngImage("b.jpg"),
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(records[0].Status).To(Equal(receipt.StatusSuccess))
			Expect(records[1].Status).To(Equal(receipt.StatusFailure))
			Expect(records[1].SourceFile).To(Equal("b.jpg"))
		})
	})

	When("an image cannot be converted", func() {
		It("fails it locally and submits the rest under their original positions", func() {
			client.outcomes = []BatchOutcome{
				{CustomID: "img-0001", Text: okResponse},
			}
			b := NewBatch(client, time.Millisecond, time.Second)

			records, err := b.Extract(ctx, []Image{
				{Name: "broken.jpg", Data: []byte("junk"), ContentType: "image/jpeg"},
				pngImage("b.jpg"),
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(client.submitted).To(HaveLen(1))
			Expect(client.submitted[0].CustomID).To(Equal("img-0001"))
			Expect(records[0].Status).To(Equal(receipt.StatusFailure))
			Expect(records[1].Status).To(Equal(receipt.StatusSuccess))
		})
	})

	When("no image survives conversion", func() {
		It("returns failure records without submitting a job", func() {
			client.submitErr = errors.New("should not be called")
			b := NewBatch(client, time.Millisecond, time.Second)

			records, err := b.Extract(ctx, []Image{
				{Name: "broken.jpg", Data: []byte("junk"), ContentType: "image/jpeg"},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(receipt.StatusFailure))
		})
	})

	When("the job never finishes in time", func() {
		It("cancels it and fails the run", func() {
			client.pollsUntilDone = 1 << 30
			b := NewBatch(client, time.Millisecond, 5*time.Millisecond)

			records, err := b.Extract(ctx, []Image{pngImage("a.jpg")})
			Expect(err).To(MatchError(ErrBatchTimeout))
			Expect(records).To(BeNil())
			Expect(client.canceled).To(BeTrue())
		})
	})

	When("submitting the job fails", func() {
		It("fails the run", func() {
			client.submitErr = errors.New("invalid request")
			b := NewBatch(client, time.Millisecond, time.Second)

			_, err := b.Extract(ctx, []Image{pngImage("a.jpg")})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("submitting batch"))
		})
	})

	When("polling the job fails", func() {
		It("fails the run", func() {
			client.pollErr = errors.New("boom")
			b := NewBatch(client, time.Millisecond, time.Second)

			_, err := b.Extract(ctx, []Image{pngImage("a.jpg")})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("polling batch"))
		})
	})

	When("collecting results fails", func() {
		It("fails the run", func() {
			client.resultsErr = errors.New("stream broke")
			b := NewBatch(client, time.Millisecond, time.Second)

			_, err := b.Extract(ctx, []Image{pngImage("a.jpg")})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("collecting batch results"))
		})
	})

	When("there are no images", func() {
		It("returns nothing", func() {
			b := NewBatch(client, time.Millisecond, time.Second)

			records, err := b.Extract(ctx, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})

	Describe("Close", func() {
		It("closes the underlying client", func() {
			b := NewBatch(client, time.Millisecond, time.Second)
			Expect(b.Close()).To(Succeed())
			Expect(client.closed).To(BeTrue())
		})
	})
})
