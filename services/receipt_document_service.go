package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/notifications"
)

//go:embed templates/receipt.html
var receiptTemplates embed.FS

var receiptTemplate = template.Must(template.ParseFS(receiptTemplates, "templates/receipt.html"))

// PDFRenderer turns an HTML document into PDF bytes.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// DocumentUploader stores a rendered document and returns its public URL.
type DocumentUploader interface {
	Upload(ctx context.Context, data []byte, publicID string) (string, error)
}

type SessionLoader interface {
	GetSessionsByIDs(ctx context.Context, ids []string) ([]models.Session, error)
}

// ChromePDFRenderer prints HTML to PDF with a headless Chrome.
type ChromePDFRenderer struct{}

func (ChromePDFRenderer) RenderPDF(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}

type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryUploader returns nil, nil when no CLOUDINARY_URL is set.
func NewCloudinaryUploader(cloudinaryURL, folder string) (*CloudinaryUploader, error) {
	if cloudinaryURL == "" {
		return nil, nil
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, data []byte, publicID string) (string, error) {
	uploadParams := uploader.UploadParams{
		PublicID:     publicID,
		Folder:       u.folder,
		ResourceType: "raw",
	}
	uploadResult, err := u.cld.Upload.Upload(ctx, bytes.NewReader(data), uploadParams)
	if err != nil {
		return "", err
	}
	if uploadResult.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", uploadResult.Error.Message)
	}
	return uploadResult.SecureURL, nil
}

type receiptLine struct {
	ID      string
	Date    string
	Minutes int
	Rate    string
	Amount  string
}

type receiptView struct {
	ReceiptNumber string
	GeneratedOn   string
	MentorName    string
	PeriodStart   string
	PeriodEnd     string
	Status        string
	Lines         []receiptLine
	Subtotal      string
	PlatformFee   string
	GST           string
	Total         string
	Notes         string
}

// ReceiptDocumentService renders payout receipts as HTML and PDF and can
// publish the PDF for sharing.
type ReceiptDocumentService struct {
	sessions SessionLoader
	renderer PDFRenderer
	uploader DocumentUploader
	audit    *AuditService
	logger   logging.Logger
	now      func() time.Time
}

func NewReceiptDocumentService(sessions SessionLoader, renderer PDFRenderer, uploader DocumentUploader, audit *AuditService, logger logging.Logger) *ReceiptDocumentService {
	if renderer == nil {
		renderer = ChromePDFRenderer{}
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &ReceiptDocumentService{
		sessions: sessions,
		renderer: renderer,
		uploader: uploader,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ReceiptDocumentService) RenderHTML(ctx context.Context, p *models.Payout) (string, error) {
	sessions, err := s.sessions.GetSessionsByIDs(ctx, p.Sessions)
	if err != nil {
		return "", persistenceErr("load sessions", err)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Date.Before(sessions[j].Date) })

	view := receiptView{
		ReceiptNumber: p.ReceiptNumber,
		GeneratedOn:   s.now().Format("02 Jan 2006"),
		MentorName:    p.MentorName,
		PeriodStart:   p.PeriodStart.Format("02 Jan 2006"),
		PeriodEnd:     p.PeriodEnd.Format("02 Jan 2006"),
		Status:        string(p.Status),
		Subtotal:      notifications.FormatAmount(p.Currency, p.Subtotal),
		PlatformFee:   notifications.FormatAmount(p.Currency, p.PlatformFee),
		GST:           notifications.FormatAmount(p.Currency, p.GST),
		Total:         notifications.FormatAmount(p.Currency, p.TotalAmount),
		Notes:         p.Notes,
	}
	for _, sess := range sessions {
		view.Lines = append(view.Lines, receiptLine{
			ID:      sess.ID,
			Date:    sess.Date.Format("02 Jan 2006"),
			Minutes: sess.Duration,
			Rate:    sess.RatePerHour.StringFixed(2),
			Amount:  sess.Payable().StringFixed(2),
		})
	}

	var renderedHTML bytes.Buffer
	if err := receiptTemplate.Execute(&renderedHTML, view); err != nil {
		return "", err
	}
	return renderedHTML.String(), nil
}

func (s *ReceiptDocumentService) RenderPDF(ctx context.Context, p *models.Payout) ([]byte, error) {
	htmlContent, err := s.RenderHTML(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.renderer.RenderPDF(ctx, htmlContent)
}

// Publish uploads the receipt PDF and records the public URL in the audit log.
func (s *ReceiptDocumentService) Publish(ctx context.Context, p *models.Payout, actor string) (string, error) {
	if s.uploader == nil {
		return "", ErrPublishingDisabled
	}
	pdf, err := s.RenderPDF(ctx, p)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	url, err := s.uploader.Upload(ctx, pdf, fmt.Sprintf("receipts/%s", p.ReceiptNumber))
	if err != nil {
		return "", fmt.Errorf("upload receipt: %w", err)
	}

	if s.audit != nil {
		details := PayoutDetails(p)
		details["url"] = url
		s.audit.Record(ctx, AuditEntry{
			Actor:       actor,
			Title:       AuditReceiptPublished,
			Description: fmt.Sprintf("Published receipt %s for %s", p.ReceiptNumber, p.MentorName),
			Details:     details,
		})
	}
	s.logger.WithFields(logging.Fields{"payout_id": p.ID, "url": url}).Info("Published payout receipt")
	return url, nil
}
