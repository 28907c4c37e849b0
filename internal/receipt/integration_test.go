package receipt_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-scanner/internal/pipeline"
	"github.com/zombor/receipt-scanner/internal/receipt"
	"github.com/zombor/receipt-scanner/internal/scanning"
)

// staticBackend returns the same transcript for every image
type staticBackend struct {
	text  string
	calls atomic.Int32
}

func (b *staticBackend) Name() string { return "tesseract" }

func (b *staticBackend) Recognize(_ context.Context, _, _ string) (scanning.Recognition, error) {
	b.calls.Add(1)
	return scanning.Recognition{Text: b.text, Confidence: 88}, nil
}

func (b *staticBackend) Close() error { return nil }

func receiptPNG() []byte {
	img := image.NewGray(image.Rect(0, 0, 60, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 60; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * y) % 256)})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       receipt.DB
		store    receipt.Storage
		backend  *staticBackend
		ghServer *ghttp.Server
	)

	BeforeEach(func() {
		var err error
		tempDir = GinkgoT().TempDir()

		db, err = receipt.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = receipt.NewLocalStorage(filepath.Join(tempDir, "receipts"))
		Expect(err).NotTo(HaveOccurred())

		backend = &staticBackend{text: "LIDL\n15/03/2024\nPAIN  1,20\nTOTAL 9,90 EUR\nTVA 5,5% 0,52"}
		orchestrator := pipeline.New(pipeline.Config{
			Local:      backend,
			ScratchDir: tempDir,
		})

		server := receipt.NewServer(receipt.NewService(db, orchestrator, store), receipt.BasicAuth{})
		ghServer = ghttp.NewServer()
		ghServer.RouteToHandler(http.MethodGet, regexp.MustCompile(".*"), server.ServeHTTP)
		ghServer.RouteToHandler(http.MethodPost, regexp.MustCompile(".*"), server.ServeHTTP)
		ghServer.RouteToHandler(http.MethodDelete, regexp.MustCompile(".*"), server.ServeHTTP)
	})

	AfterEach(func() {
		ghServer.Close()
		Expect(db.Close()).To(Succeed())
	})

	upload := func(data []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "ticket.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		req, err := http.NewRequest(http.MethodPost, ghServer.URL()+"/api/receipts", body)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", writer.FormDataContentType())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("uploads a receipt, extracts it and serves it back", func() {
		data := receiptPNG()
		resp := upload(data)
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var result receipt.Result
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
		Expect(result.Status).To(Equal(pipeline.StatusSuccess))
		Expect(result.Record).NotTo(BeNil())
		Expect(result.Record.Merchant).To(Equal("LIDL"))
		Expect(result.Record.Total.Decimal.StringFixed(2)).To(Equal("9.90"))
		Expect(result.Record.Owner).To(Equal(receipt.AnonymousOwner))

		// good enough on the first pass
		Expect(backend.calls.Load()).To(Equal(int32(1)))

		saved, err := db.GetRecord(receipt.AnonymousOwner, result.Record.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Merchant).To(Equal("LIDL"))

		fileResp, err := http.Get(ghServer.URL() + "/api/receipts/" + result.Record.ID + "/file")
		Expect(err).NotTo(HaveOccurred())
		defer fileResp.Body.Close()
		Expect(fileResp.StatusCode).To(Equal(http.StatusOK))
		served, err := io.ReadAll(fileResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(served).To(Equal(data))

		req, err := http.NewRequest(http.MethodDelete, ghServer.URL()+"/api/receipts/"+result.Record.ID, nil)
		Expect(err).NotTo(HaveOccurred())
		delResp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		delResp.Body.Close()

		_, err = db.GetRecord(receipt.AnonymousOwner, result.Record.ID)
		Expect(err).To(MatchError(receipt.ErrNotFound))
	})

	It("runs every pass and stores nothing when the text is unreadable", func() {
		backend.text = "~~ ##"
		resp := upload(receiptPNG())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

		var result receipt.Result
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
		Expect(result.Status).To(Equal(pipeline.StatusFailure))
		Expect(result.Record).To(BeNil())

		// two fast languages and three variants
		Expect(backend.calls.Load()).To(Equal(int32(5)))

		records, err := db.ListRecords(receipt.AnonymousOwner)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
		Expect(filepath.Glob(filepath.Join(tempDir, "receipts", "*", "*"))).To(BeEmpty())
	})

	It("rejects a file that is not an image", func() {
		resp := upload([]byte("not an image at all"))
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})
})
