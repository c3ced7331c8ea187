// Package pdf 生成审批通过后归档的系统文档。
package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/sagara-io/crflow/internal/cr/entity"
)

const dateLayout = "2006-01-02 15:04"

// RenderRequestForm 渲染变更请求表单 PDF
func RenderRequestForm(req *entity.ChangeRequest) (*bytes.Buffer, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Change Request "+req.Code, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Change Request Form", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, req.Code, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	writeField(pdf, "Title", req.Title)
	if req.TargetDate != nil {
		writeField(pdf, "Target Date", req.TargetDate.Format("2006-01-02"))
	}
	writeField(pdf, "Requester 1", req.Requester1)
	writeField(pdf, "Requester 2", req.Requester2)
	writeField(pdf, "Division", req.Division)
	writeField(pdf, "Business Area", req.BusinessArea)
	writeField(pdf, "Category Impact", req.CategoryImpact)
	writeField(pdf, "Impact Description", req.ImpactDescription)
	writeField(pdf, "Background", req.Background)
	writeField(pdf, "Objective", req.Objective)
	writeField(pdf, "Service Explanation", req.ServiceExplanation)

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated at %s", time.Now().Format(dateLayout)), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render form pdf: %w", err)
	}
	return &buf, nil
}

// RenderApprovalRecord 渲染审批记录 PDF
func RenderApprovalRecord(req *entity.ChangeRequest, logs []entity.ApprovalLog) (*bytes.Buffer, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Approval Record "+req.Code, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Approval Record", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s - %s", req.Code, req.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// 表头
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(35, 7, "Date", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 7, "Approver", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 7, "Action", "1", 0, "L", true, 0, "")
	pdf.CellFormat(80, 7, "Notes", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, l := range logs {
		approver := l.ApproverID
		if l.Approver != nil {
			approver = l.Approver.Name
		}
		notes := l.Notes
		if len(notes) > 120 {
			notes = notes[:117] + "..."
		}
		pdf.CellFormat(35, 7, l.CreatedAt.Format(dateLayout), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, approver, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, l.Action, "1", 0, "L", false, 0, "")
		pdf.CellFormat(80, 7, notes, "1", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Final status: %s, generated at %s", req.Status, time.Now().Format(dateLayout)), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render approval pdf: %w", err)
	}
	return &buf, nil
}

func writeField(pdf *gofpdf.Fpdf, label, value string) {
	if value == "" {
		return
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 7, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 7, value, "", "L", false)
}
