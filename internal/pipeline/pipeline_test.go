package pipeline

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-scanner/internal/preprocess"
	"github.com/zombor/receipt-scanner/internal/scanning"
)

const (
	textGood = `CARREFOUR CITY
12 RUE DE LA PAIX
15/03/2024 12:31
LAIT DEMI ECREME  1,15
2x BAGUETTE  1,90
PAIN AU CHOCOLAT  0,95
BEURRE DOUX  2,49
TOTAL  6,49 €
TVA 5,5% 0,34`
	// merchant + fallback total = 45
	textPartial = "CARREFOUR CITY\n12,00"
	// fallback total only = 20
	textAmountOnly = "LAIT 3,20"
	// merchant only = 25, no total
	textMerchantOnly = "CARREFOUR CITY"
)

var errTransport = errors.New("connection refused")

type call struct {
	path string
	lang string
}

type mockBackend struct {
	name      string
	calls     []call
	recognize func(ctx context.Context, path, lang string) (scanning.Recognition, error)
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Recognize(ctx context.Context, path, lang string) (scanning.Recognition, error) {
	m.calls = append(m.calls, call{path: path, lang: lang})
	if m.recognize == nil {
		return scanning.Recognition{}, nil
	}
	return m.recognize(ctx, path, lang)
}

func (m *mockBackend) Close() error { return nil }

// mockPreprocessor writes empty variant files so cleanup can be observed.
type mockPreprocessor struct {
	calls  int
	labels []string
	err    error
}

func (m *mockPreprocessor) CreateVariants(ctx context.Context, src, dir string) ([]preprocess.Variant, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []preprocess.Variant
	for _, l := range m.labels {
		p := filepath.Join(dir, l+".png")
		if err := os.WriteFile(p, []byte("variant"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, preprocess.Variant{Label: l, Path: p})
	}
	return out, nil
}

func textFor(texts map[string]string) func(ctx context.Context, path, lang string) (scanning.Recognition, error) {
	return func(_ context.Context, path, lang string) (scanning.Recognition, error) {
		key := filepath.Base(path) + "|" + lang
		if t, ok := texts[key]; ok {
			return scanning.Recognition{Text: t}, nil
		}
		return scanning.Recognition{}, errTransport
	}
}

var _ = Describe("Orchestrator", func() {
	var (
		scratch      string
		imagePath    string
		cloud        *mockBackend
		local        *mockBackend
		preprocessor *mockPreprocessor
		useCloud     bool
		timeout      time.Duration
		ctx          context.Context
		outcome      *Outcome
		err          error
	)

	BeforeEach(func() {
		scratch = GinkgoT().TempDir()
		imagePath = filepath.Join(GinkgoT().TempDir(), "receipt.jpg")
		Expect(imaging.Save(imaging.New(20, 30, color.White), imagePath)).To(Succeed())

		cloud = &mockBackend{name: "vision"}
		local = &mockBackend{name: "tesseract"}
		preprocessor = &mockPreprocessor{labels: []string{"light", "binarized", "high-contrast"}}
		useCloud = false
		timeout = 0
		ctx = context.Background()
	})

	JustBeforeEach(func() {
		cfg := Config{
			Local:          local,
			Preprocessor:   preprocessor,
			ScratchDir:     scratch,
			AttemptTimeout: timeout,
		}
		if useCloud {
			cfg.Cloud = cloud
		}
		outcome, err = New(cfg).Run(ctx, imagePath)
	})

	AfterEach(func() {
		entries, readErr := os.ReadDir(scratch)
		Expect(readErr).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty(), "scratch files leaked")
	})

	When("the fast pass reaches the good score", func() {
		BeforeEach(func() {
			local.recognize = textFor(map[string]string{"input.png|fra": textGood})
		})

		It("succeeds", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(StatusSuccess))
			Expect(outcome.Accepted()).To(BeTrue())
			Expect(outcome.Best.Fields.Total.Decimal.StringFixed(2)).To(Equal("6.49"))
		})

		It("never runs the preprocessor", func() {
			Expect(preprocessor.calls).To(BeZero())
		})

		It("stops after the first language", func() {
			Expect(local.calls).To(HaveLen(1))
			Expect(outcome.Attempts).To(Equal(1))
		})
	})

	When("the combined language is needed", func() {
		BeforeEach(func() {
			local.recognize = textFor(map[string]string{
				"input.png|fra":     textPartial,
				"input.png|fra+eng": textGood,
			})
		})

		It("tries the languages in order and exits early", func() {
			Expect(local.calls).To(HaveLen(2))
			Expect(local.calls[0].lang).To(Equal("fra"))
			Expect(local.calls[1].lang).To(Equal("fra+eng"))
			Expect(preprocessor.calls).To(BeZero())
			Expect(outcome.Best.Language).To(Equal("fra+eng"))
		})
	})

	When("only a preprocessed variant is good", func() {
		BeforeEach(func() {
			local.recognize = textFor(map[string]string{
				"input.png|fra":     textPartial,
				"input.png|fra+eng": textAmountOnly,
				"light.png|fra":     textPartial,
				"binarized.png|fra": textGood,
			})
		})

		It("returns the variant result", func() {
			Expect(outcome.Status).To(Equal(StatusSuccess))
			Expect(outcome.Best.Pass).To(Equal(PassPreprocessed))
			Expect(outcome.Best.Variant).To(Equal("binarized"))
		})

		It("stops before the remaining variants", func() {
			Expect(local.calls).To(HaveLen(4))
			Expect(preprocessor.calls).To(Equal(1))
		})
	})

	When("no attempt reaches the good score", func() {
		BeforeEach(func() {
			local.recognize = textFor(map[string]string{
				"input.png|fra":         textAmountOnly,
				"input.png|fra+eng":     textPartial,
				"light.png|fra":         textAmountOnly,
				"binarized.png|fra":     textMerchantOnly,
				"high-contrast.png|fra": textAmountOnly,
			})
		})

		It("keeps the best attempt and classifies it as partial", func() {
			Expect(local.calls).To(HaveLen(5))
			Expect(outcome.Status).To(Equal(StatusPartial))
			Expect(outcome.Best.Language).To(Equal("fra+eng"))
			Expect(outcome.Message).To(Equal(Message(StatusPartial, false)))
		})
	})

	When("a cloud backend is configured", func() {
		BeforeEach(func() {
			useCloud = true
		})

		Context("and it finds a total", func() {
			BeforeEach(func() {
				cloud.recognize = textFor(map[string]string{"input.png|": textAmountOnly})
			})

			It("accepts the cloud result at a lower bar", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Status).To(Equal(StatusAmountOnly))
				Expect(outcome.Message).To(Equal(Message(StatusAmountOnly, true)))
				Expect(outcome.Best.Pass).To(Equal(PassCloud))
				Expect(local.calls).To(BeEmpty())
			})
		})

		Context("and it finds a total with a partial score", func() {
			BeforeEach(func() {
				cloud.recognize = textFor(map[string]string{"input.png|": textPartial})
			})

			It("keeps the partial status but reports the total as detected", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Status).To(Equal(StatusPartial))
				Expect(outcome.Message).To(Equal(Message(StatusAmountOnly, true)))
				Expect(local.calls).To(BeEmpty())
			})
		})

		Context("and it scores below its bar without a total", func() {
			BeforeEach(func() {
				cloud.recognize = textFor(map[string]string{"input.png|": textMerchantOnly})
				local.recognize = textFor(map[string]string{"input.png|fra": textGood})
			})

			It("falls through to the local engine", func() {
				Expect(local.calls).To(HaveLen(1))
				Expect(outcome.Best.Backend).To(Equal("tesseract"))
			})
		})

		Context("and it fails", func() {
			BeforeEach(func() {
				cloud.recognize = func(context.Context, string, string) (scanning.Recognition, error) {
					return scanning.Recognition{}, scanning.ErrUnavailable
				}
				local.recognize = textFor(map[string]string{"input.png|fra": textGood})
			})

			It("logs and falls through", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Status).To(Equal(StatusSuccess))
				Expect(cloud.calls).To(HaveLen(1))
			})
		})
	})

	When("every preprocessing step and every backend fails", func() {
		BeforeEach(func() {
			useCloud = true
			cloud.recognize = textFor(nil)
			local.recognize = textFor(nil)
			preprocessor.labels = nil
		})

		It("returns no candidate", func() {
			Expect(err).To(MatchError(ErrNoCandidate))
			Expect(outcome).To(BeNil())
		})

		It("retries the original image once", func() {
			Expect(local.calls).To(HaveLen(3))
			Expect(filepath.Base(local.calls[2].path)).To(Equal("input.png"))
		})
	})

	When("every variant is tried and the text is unreadable", func() {
		BeforeEach(func() {
			local.recognize = func(context.Context, string, string) (scanning.Recognition, error) {
				return scanning.Recognition{Text: "~~ ##"}, nil
			}
		})

		It("classifies the run as a failure", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(StatusFailure))
			Expect(outcome.Accepted()).To(BeFalse())
			Expect(outcome.Attempts).To(Equal(5))
		})
	})

	When("the image is unreadable", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(imagePath, []byte("garbage"), 0o644)).To(Succeed())
		})

		It("returns an input error without calling any backend", func() {
			Expect(err).To(MatchError(preprocess.ErrInput))
			Expect(local.calls).To(BeEmpty())
		})
	})

	When("the caller cancels", func() {
		BeforeEach(func() {
			c, cancel := context.WithCancel(context.Background())
			ctx = c
			local.recognize = func(context.Context, string, string) (scanning.Recognition, error) {
				cancel()
				return scanning.Recognition{Text: textGood}, nil
			}
		})

		It("discards the result", func() {
			Expect(err).To(MatchError(context.Canceled))
			Expect(outcome).To(BeNil())
		})
	})

	When("a backend call outlives the attempt timeout", func() {
		BeforeEach(func() {
			timeout = 10 * time.Millisecond
			slow := &slowBackend{}
			local.recognize = slow.recognize
		})

		It("treats the timeout as a failed attempt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(StatusSuccess))
			Expect(outcome.Best.Language).To(Equal("fra+eng"))
		})
	})
})

// slowBackend blocks past its deadline on the first call, then succeeds.
type slowBackend struct {
	calls int
}

func (s *slowBackend) recognize(ctx context.Context, path, lang string) (scanning.Recognition, error) {
	s.calls++
	if s.calls == 1 {
		select {
		case <-ctx.Done():
			return scanning.Recognition{}, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return scanning.Recognition{Text: textGood}, nil
}

var _ = Describe("Classify", func() {
	DescribeTable("thresholds",
		func(score int, hasTotal bool, want Status) {
			Expect(Classify(score, hasTotal)).To(Equal(want))
		},
		Entry("no score, no total", 0, false, StatusFailure),
		Entry("low score with total", 24, true, StatusAmountOnly),
		Entry("low score without total", 24, false, StatusFailure),
		Entry("partial lower bound", 25, false, StatusPartial),
		Entry("partial upper bound", 49, true, StatusPartial),
		Entry("success lower bound", 50, false, StatusSuccess),
		Entry("unclamped score", 145, true, StatusSuccess),
	)

	It("has a message for every status", func() {
		for _, s := range []Status{StatusSuccess, StatusPartial, StatusAmountOnly, StatusFailure} {
			Expect(Message(s, false)).NotTo(BeEmpty())
			Expect(Message(s, true)).NotTo(BeEmpty())
		}
	})
})
