package receipt

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WriteSummary", func() {
	var (
		groups []Group
		buf    *bytes.Buffer
		err    error
	)

	JustBeforeEach(func() {
		buf = &bytes.Buffer{}
		err = WriteSummary(buf, groups)
	})

	When("writing two groups", func() {
		BeforeEach(func() {
			groups = []Group{
				{
					Key:           GroupKey{Institution: "さくら薬局", Patient: "田中 太郎"},
					TotalAmount:   4500,
					RecordCount:   2,
					AmountedCount: 2,
					SourceFiles:   []string{"a.jpg", "b.jpg"},
				},
				{
					Key:           GroupKey{Institution: "中央病院", Patient: "鈴木"},
					TotalAmount:   2000,
					RecordCount:   1,
					AmountedCount: 1,
					SourceFiles:   []string{"c.pdf"},
				},
			}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("starts with a UTF-8 BOM", func() {
			Expect(strings.HasPrefix(buf.String(), "\uFEFF")).To(BeTrue())
		})

		It("writes the form layout exactly", func() {
			expected := "\uFEFF" +
				"hospital_name,patient_name,medical_cure,medicine,support,others,total_amount,receipt_count,receipts_with_amount,filenames\n" +
				"さくら薬局,田中 太郎,該当する,,,,4500,2,2,\"a.jpg, b.jpg\"\n" +
				"中央病院,鈴木,該当する,,,,2000,1,1,c.pdf\n"
			Expect(buf.String()).To(Equal(expected))
		})
	})

	When("there are no groups", func() {
		BeforeEach(func() {
			groups = nil
		})

		It("writes only the BOM and header", func() {
			Expect(err).NotTo(HaveOccurred())
			expected := "\uFEFF" +
				"hospital_name,patient_name,medical_cure,medicine,support,others,total_amount,receipt_count,receipts_with_amount,filenames\n"
			Expect(buf.String()).To(Equal(expected))
		})
	})
})

var _ = Describe("WriteDetail", func() {
	var (
		records []Record
		buf     *bytes.Buffer
		err     error
	)

	JustBeforeEach(func() {
		buf = &bytes.Buffer{}
		err = WriteDetail(buf, records)
	})

	When("writing records with mixed outcomes", func() {
		BeforeEach(func() {
			records = []Record{
				{SourceFile: "a.jpg", PatientName: "田中太郎", Institution: "さくら薬局", Amount: 1200, AmountOK: true, Status: StatusSuccess},
				{SourceFile: "b.jpg", PatientName: "佐藤", Institution: "中央病院", Status: StatusPartialFailure},
				{SourceFile: "c.jpg", Status: StatusFailure},
			}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("writes one row per record in extraction order", func() {
			expected := "\uFEFF" +
				"filename,patient_name,hospital_name,amount,extraction_status\n" +
				"a.jpg,田中太郎,さくら薬局,1200,success\n" +
				"b.jpg,佐藤,中央病院,0,partial_failure\n" +
				"c.jpg,,,0,failure\n"
			Expect(buf.String()).To(Equal(expected))
		})
	})

	When("there are no records", func() {
		BeforeEach(func() {
			records = nil
		})

		It("writes only the BOM and header", func() {
			Expect(err).NotTo(HaveOccurred())
			expected := "\uFEFF" +
				"filename,patient_name,hospital_name,amount,extraction_status\n"
			Expect(buf.String()).To(Equal(expected))
		})
	})
})
