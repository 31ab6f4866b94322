package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/drive/drivetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipOf(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve">world</w:t></w:r></w:p>` +
	`<w:p><w:r><w:instrText>PAGE</w:instrText><w:t>Second</w:t><w:br/><w:t>line</w:t></w:r></w:p>` +
	`</w:body></w:document>`

const sampleContentXML = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">` +
	`<office:body><office:text><text:h>Title</text:h><text:p>One<text:s/>two</text:p></office:text></office:body>` +
	`</office:document-content>`

func TestDocxText(t *testing.T) {
	text, err := docxText(zipOf(t, "word/document.xml", sampleDocumentXML))
	require.NoError(t, err)
	assert.Equal(t, "Hello world\nSecond\nline", Normalize(text))
}

func TestDocxText_NotAnArchive(t *testing.T) {
	_, err := docxText([]byte("plain bytes"))
	assert.Error(t, err)
}

func TestDocxText_MissingPart(t *testing.T) {
	_, err := docxText(zipOf(t, "other.xml", "<a/>"))
	assert.ErrorContains(t, err, "word/document.xml not found")
}

func TestOdtText(t *testing.T) {
	text, err := odtText(zipOf(t, "content.xml", sampleContentXML))
	require.NoError(t, err)
	assert.Equal(t, "Title\nOne two", Normalize(text))
}

const sampleEmail = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Enquiry about steel\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please quote for 20 beams.\r\n"

func TestEmailText(t *testing.T) {
	text, err := emailText([]byte(sampleEmail))
	require.NoError(t, err)
	assert.Contains(t, text, "Subject: Enquiry about steel")
	assert.Contains(t, text, "Please quote for 20 beams.")
}

func TestMboxText(t *testing.T) {
	box := "From alice@example.com Mon Jan  1 00:00:00 2024\n" +
		"From: alice@example.com\nSubject: First\n\nBody one\n\n" +
		"From bob@example.com Tue Jan  2 00:00:00 2024\n" +
		"From: bob@example.com\nSubject: Second\n\nBody two\n"

	text, err := mboxText([]byte(box))
	require.NoError(t, err)
	assert.Contains(t, text, "Body one")
	assert.Contains(t, text, "Body two")
	assert.Contains(t, text, "---")
}

func TestPdfText_Malformed(t *testing.T) {
	_, err := pdfText([]byte("%PDF-1.4 truncated"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	in := "a\r\nb\t\tc  \n\n\n\n d\x00\x07"
	assert.Equal(t, "a\nb c\n\n d", Normalize(in))
}

func TestTrimHeader_StopsAtMarker(t *testing.T) {
	in := "Dear Sir\n\n  To:   Acme \nOur REFERENCE: 12\nBody text"
	assert.Equal(t, "Dear Sir\nTo: Acme\nOur REFERENCE: 12", TrimHeader(in, "reference", 23))
}

func TestTrimHeader_LineLimitWithoutMarker(t *testing.T) {
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = "line"
	}
	out := TrimHeader(strings.Join(lines, "\n"), "reference", 23)
	assert.Len(t, strings.Split(out, "\n"), 23)
}

func TestTrimHeader_Disabled(t *testing.T) {
	assert.Equal(t, "a\n\nb", TrimHeader("a\n\nb", "reference", 0))
}

func TestFallback(t *testing.T) {
	size := int64(2048)
	f := domain.FileRecord{
		Name:         "Quote.pdf",
		MimeType:     domain.MimePDF,
		Size:         &size,
		ModifiedTime: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t,
		"[Document Information]\nName: Quote.pdf\nType: application/pdf\nSize: 2KB\nModified: Fri, 01 Mar 2024 10:00:00 UTC\n\nboom",
		Fallback(f, "boom"))

	f.Size = nil
	assert.Contains(t, Fallback(f, "x"), "Size: Unknown\n")
}

func TestIsLegacyWord(t *testing.T) {
	assert.True(t, IsLegacyWord([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00}))
	assert.True(t, IsLegacyWord([]byte{0xEC, 0xA5, 0xC1, 0x00, 0x01}))
	assert.True(t, IsLegacyWord([]byte{0xDB, 0xA5, 0x2D, 0x00}))
	assert.False(t, IsLegacyWord([]byte("PK\x03\x04")))
	assert.False(t, IsLegacyWord(nil))
}

// wordStreams builds a WordDocument stream holding pieces at fixed offsets
// and a 1Table stream whose Clx describes them.
func wordStreams(prc []byte, pieces ...[]byte) map[string][]byte {
	wd := make([]byte, 0x400)
	binary.LittleEndian.PutUint16(wd[fibFlags:], fibWhichTable)

	var cps, pcds []byte
	cp := uint32(0)
	cps = binary.LittleEndian.AppendUint32(cps, cp)
	for _, p := range pieces {
		fc := uint32(len(wd))
		wd = append(wd, p[1:]...)
		var chars uint32
		if p[0] == 'c' {
			chars = uint32(len(p) - 1)
			fc = (fc * 2) | fcCompressed
		} else {
			chars = uint32(len(p)-1) / 2
		}
		cp += chars
		cps = binary.LittleEndian.AppendUint32(cps, cp)
		pcd := make([]byte, 8)
		binary.LittleEndian.PutUint32(pcd[2:], fc)
		pcds = append(pcds, pcd...)
	}
	plc := append(cps, pcds...)

	clx := append([]byte{}, prc...)
	clx = append(clx, 0x02)
	clx = binary.LittleEndian.AppendUint32(clx, uint32(len(plc)))
	clx = append(clx, plc...)

	table := append(make([]byte, 8), clx...)
	binary.LittleEndian.PutUint32(wd[fibFcClx:], 8)
	binary.LittleEndian.PutUint32(wd[fibLcbClx:], uint32(len(clx)))
	return map[string][]byte{"WordDocument": wd, "1Table": table}
}

func utf16le(s string) []byte {
	var out []byte
	for _, r := range s {
		out = binary.LittleEndian.AppendUint16(out, uint16(r))
	}
	return out
}

func TestPieceTableText(t *testing.T) {
	streams := wordStreams(
		[]byte{0x01, 0x02, 0x00, 0xAA, 0xBB},
		append([]byte("c"), []byte("Reference: 42\rcaf\xe9\x07")...),
		append([]byte("u"), utf16le("Size \x13 PAGE \x141\x15 done\r")...),
	)

	text, err := pieceTableText(streams)
	require.NoError(t, err)
	assert.Equal(t, "Reference: 42\ncafé\tSize 1 done\n", text)
}

func TestPieceTableText_WrongTableStream(t *testing.T) {
	streams := wordStreams(nil, append([]byte("c"), []byte("text")...))
	streams["0Table"] = streams["1Table"]
	delete(streams, "1Table")

	_, err := pieceTableText(streams)
	assert.ErrorIs(t, err, errNoPieceTable)
}

func TestPieceTableText_ShortStream(t *testing.T) {
	_, err := pieceTableText(map[string][]byte{"WordDocument": make([]byte, 10)})
	assert.ErrorIs(t, err, errNoPieceTable)
}

func TestWordText_NotACompoundFile(t *testing.T) {
	_, err := wordText(append(append([]byte{}, wordSignatures[0]...), "junk"...))
	assert.Error(t, err)
}

func TestSalvageText(t *testing.T) {
	data := append(append([]byte{}, wordSignatures[0]...),
		"\x00\x01\x02Reference: PO-4471 steel beams\rab\r\x00\x00Subject: Delivery of structural steel to the north yard\r\xff\xfe"...)

	text := salvageText(data)
	assert.Contains(t, text, "Reference: PO-4471 steel beams")
	assert.Contains(t, text, "Subject: Delivery of structural steel to the north yard")
	assert.NotContains(t, text, "\nab\n")
}

func TestStripFields(t *testing.T) {
	assert.Equal(t, "alinkb", stripFields("a\x13 HYPERLINK \"x\" \x14link\x15b"))
	assert.Equal(t, "ab", stripFields("a\x13 PAGE \x15b"))
	assert.Equal(t, "plain", stripFields("plain"))
}

type countingRecorder struct {
	mu     sync.Mutex
	ok, ko map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ok: map[string]int{}, ko: map[string]int{}}
}

func (r *countingRecorder) Extraction(kind string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.ok[kind]++
	} else {
		r.ko[kind]++
	}
}

func newTestExtractor(t *testing.T) (*Extractor, *drivetest.Fake, *countingRecorder) {
	t.Helper()
	fake := drivetest.New()
	rec := newCountingRecorder()
	return New(fake, nil, Options{}, WithRecorder(rec)), fake, rec
}

func TestExtract_Docx(t *testing.T) {
	e, fake, rec := newTestExtractor(t)
	fake.Files["d1"] = zipOf(t, "word/document.xml", sampleDocumentXML)

	res := e.Extract(context.Background(), domain.FileRecord{ID: "d1", Name: "a.docx", MimeType: domain.MimeOpenXMLDoc})
	assert.True(t, res.Succeeded)
	assert.Equal(t, "d1", res.FileID)
	assert.Equal(t, "a.docx", res.FileName)
	assert.Equal(t, "Hello world\nSecond\nline", res.Content)
	assert.Equal(t, 1, rec.ok["docx"])
}

func TestExtract_NativeDocUsesExport(t *testing.T) {
	e, fake, _ := newTestExtractor(t)
	fake.Exports["g1"] = zipOf(t, "word/document.xml", sampleDocumentXML)

	res := e.Extract(context.Background(), domain.FileRecord{ID: "g1", Name: "Notes", MimeType: domain.MimeNativeDoc})
	assert.True(t, res.Succeeded)
	assert.Contains(t, res.Content, "Hello world")
}

func TestExtract_PlainText(t *testing.T) {
	e, fake, _ := newTestExtractor(t)
	fake.Files["t1"] = []byte("line one\r\nline two\r\n")

	res := e.Extract(context.Background(), domain.FileRecord{ID: "t1", Name: "a.txt", MimeType: domain.MimePlainText})
	assert.True(t, res.Succeeded)
	assert.Equal(t, "line one\nline two", res.Content)
}

func TestExtract_UnsupportedGivesFallback(t *testing.T) {
	e, fake, rec := newTestExtractor(t)

	res := e.Extract(context.Background(), domain.FileRecord{ID: "z", Name: "photo.png", MimeType: "image/png"})
	assert.False(t, res.Succeeded)
	assert.True(t, strings.HasPrefix(res.Content, "[Document Information]\nName: photo.png\n"))
	assert.Contains(t, res.FailureReason, "Unsupported file type")
	assert.Empty(t, fake.Downloads)
	assert.Equal(t, 1, rec.ko["unsupported"])
}

func TestExtract_TooLargeSkipsDownload(t *testing.T) {
	e, fake, _ := newTestExtractor(t)
	size := int64(11 << 20)

	res := e.Extract(context.Background(), domain.FileRecord{ID: "big", Name: "big.pdf", MimeType: domain.MimePDF, Size: &size})
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.FailureReason, "too large")
	assert.Empty(t, fake.Downloads)
}

func TestExtract_DownloadErrorGivesFallback(t *testing.T) {
	e, fake, _ := newTestExtractor(t)
	fake.Errs["p1"] = errors.New("connection reset")

	res := e.Extract(context.Background(), domain.FileRecord{ID: "p1", Name: "a.pdf", MimeType: domain.MimePDF})
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.FailureReason, "Error extracting text")
	assert.Contains(t, res.Content, "connection reset")
}

func TestExtract_SpreadsheetIsNotTextExtracted(t *testing.T) {
	e, fake, _ := newTestExtractor(t)

	res := e.Extract(context.Background(), domain.FileRecord{ID: "s1", Name: "a.xlsx", MimeType: domain.MimeOpenXMLSheet})
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.FailureReason, "spreadsheet pipeline")
	assert.Empty(t, fake.Downloads)
}

func TestExtract_LegacyDocBadSignature(t *testing.T) {
	e, fake, _ := newTestExtractor(t)
	fake.Files["w1"] = []byte("this is not a word file at all")

	res := e.Extract(context.Background(), domain.FileRecord{ID: "w1", Name: "old.doc", MimeType: domain.MimeLegacyDoc})
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.FailureReason, "doesn't appear to be a valid Word document")
}

func TestExtract_LegacyDocSalvaged(t *testing.T) {
	e, fake, _ := newTestExtractor(t)
	fake.Files["w2"] = append(append([]byte{}, wordSignatures[0]...),
		"\x00Reference: PO-4471 steel beams\rSubject: Delivery of structural steel to the north yard\r"...)

	res := e.Extract(context.Background(), domain.FileRecord{ID: "w2", Name: "old.doc", MimeType: domain.MimeLegacyDoc})
	assert.True(t, res.Succeeded)
	assert.Contains(t, res.Content, "Reference: PO-4471")
}

func TestExtract_LegacyDocFallsBackToDescription(t *testing.T) {
	e, fake, _ := newTestExtractor(t)
	fake.Files["w3"] = append(append([]byte{}, wordSignatures[0]...), "\x00\x00hi"...)
	fake.Descriptions["w3"] = "Enquiry for 20 steel beams"

	res := e.Extract(context.Background(), domain.FileRecord{ID: "w3", Name: "old.doc", MimeType: domain.MimeLegacyDoc})
	assert.True(t, res.Succeeded)
	assert.Contains(t, res.Content, "Preview from Description")
	assert.Contains(t, res.Content, "Enquiry for 20 steel beams")
}

func TestExtract_LegacyDocWithoutDescription(t *testing.T) {
	e, fake, _ := newTestExtractor(t)
	fake.Files["w4"] = append(append([]byte{}, wordSignatures[0]...), "\x00\x00hi"...)

	res := e.Extract(context.Background(), domain.FileRecord{ID: "w4", Name: "old.doc", MimeType: domain.MimeLegacyDoc})
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.FailureReason, "Limited text could be extracted")
}

func TestExtractBytes(t *testing.T) {
	text, err := ExtractBytes(domain.KindPlainText, []byte("hello\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = ExtractBytes(domain.KindUnsupported, []byte("x"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = ExtractBytes(domain.KindPDF, []byte("junk"))
	assert.ErrorIs(t, err, domain.ErrExtraction)

	_, err = ExtractBytes(domain.KindLegacyDoc, []byte("junk"))
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractor_Trim(t *testing.T) {
	e := New(drivetest.New(), nil, Options{TrimMarker: "reference", TrimMaxLines: 2})
	assert.Equal(t, "a\nb", e.Trim("a\nb\nc"))
	assert.Equal(t, "x\nreference y", e.Trim("x\nreference y\nz"))
}
