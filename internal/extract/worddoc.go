package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Legacy Word files start with one of these signatures.
var wordSignatures = [][]byte{
	{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, // compound file
	{0xEC, 0xA5, 0xC1, 0x00},                         // Word 97 FIB without container
	{0xDB, 0xA5, 0x2D, 0x00},                         // Word 6.0/95
}

// IsLegacyWord reports whether data starts with a known legacy Word signature.
func IsLegacyWord(data []byte) bool {
	for _, sig := range wordSignatures {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

// File Information Block offsets in the WordDocument stream.
const (
	fibFlags      = 0x000A
	fibWhichTable = 0x0200
	fibFcClx      = 0x01A2
	fibLcbClx     = 0x01A6

	fcCompressed = 0x40000000
	fcMask       = 0x3FFFFFFF
)

var errNoPieceTable = errors.New("no readable piece table")

// wordText reads the body text of a Word 97-2003 document through the
// piece table stored in its compound file.
func wordText(data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("malformed compound file: %v", r)
		}
	}()

	cf, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open compound file: %w", err)
	}
	streams := map[string][]byte{}
	for entry, nerr := cf.Next(); nerr == nil; entry, nerr = cf.Next() {
		switch entry.Name {
		case "WordDocument", "0Table", "1Table":
			b, rerr := io.ReadAll(entry)
			if rerr != nil {
				return "", fmt.Errorf("read %s stream: %w", entry.Name, rerr)
			}
			streams[entry.Name] = b
		}
	}
	return pieceTableText(streams)
}

// pieceTableText walks the Clx of the table stream selected by the FIB and
// decodes every piece from the WordDocument stream.
func pieceTableText(streams map[string][]byte) (string, error) {
	wd := streams["WordDocument"]
	if len(wd) < fibLcbClx+4 {
		return "", errNoPieceTable
	}
	tableName := "0Table"
	if binary.LittleEndian.Uint16(wd[fibFlags:])&fibWhichTable != 0 {
		tableName = "1Table"
	}
	table := streams[tableName]

	fc := uint64(binary.LittleEndian.Uint32(wd[fibFcClx:]))
	lcb := uint64(binary.LittleEndian.Uint32(wd[fibLcbClx:]))
	if lcb == 0 || fc+lcb > uint64(len(table)) {
		return "", errNoPieceTable
	}
	plc, err := plcPcd(table[fc : fc+lcb])
	if err != nil {
		return "", err
	}

	if len(plc) < 4 || (len(plc)-4)%12 != 0 {
		return "", errNoPieceTable
	}
	n := (len(plc) - 4) / 12
	pcds := plc[4*(n+1):]

	latin := charmap.Windows1252.NewDecoder()
	wide := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

	var b strings.Builder
	for i := 0; i < n; i++ {
		start := binary.LittleEndian.Uint32(plc[4*i:])
		end := binary.LittleEndian.Uint32(plc[4*(i+1):])
		if end <= start {
			continue
		}
		count := int(end - start)
		raw := binary.LittleEndian.Uint32(pcds[8*i+2:])

		var (
			chunk []byte
			dec   *encoding.Decoder
		)
		if raw&fcCompressed != 0 {
			off := int(raw&fcMask) / 2
			if off+count > len(wd) {
				return "", errNoPieceTable
			}
			chunk, dec = wd[off:off+count], latin
		} else {
			off := int(raw & fcMask)
			if off+2*count > len(wd) {
				return "", errNoPieceTable
			}
			chunk, dec = wd[off:off+2*count], wide
		}
		s, err := dec.Bytes(chunk)
		if err != nil {
			return "", fmt.Errorf("decode piece %d: %w", i, err)
		}
		b.Write(s)
	}
	return wordMarks.Replace(stripFields(b.String())), nil
}

// plcPcd skips the Prc entries of a Clx and returns its PlcPcd.
func plcPcd(clx []byte) ([]byte, error) {
	for i := 0; i < len(clx); {
		switch clx[i] {
		case 0x01:
			if i+3 > len(clx) {
				return nil, errNoPieceTable
			}
			i += 3 + int(binary.LittleEndian.Uint16(clx[i+1:]))
		case 0x02:
			if i+5 > len(clx) {
				return nil, errNoPieceTable
			}
			size := int(binary.LittleEndian.Uint32(clx[i+1:]))
			if i+5+size > len(clx) {
				return nil, errNoPieceTable
			}
			return clx[i+5 : i+5+size], nil
		default:
			return nil, errNoPieceTable
		}
	}
	return nil, errNoPieceTable
}

// wordMarks maps Word's in-band paragraph, cell and break marks to text.
var wordMarks = strings.NewReplacer("\r", "\n", "\x07", "\t", "\x0b", "\n", "\x0c", "\n")

// stripFields drops field instructions, keeping each field's displayed result.
func stripFields(s string) string {
	if !strings.ContainsRune(s, 0x13) {
		return s
	}
	var (
		b     strings.Builder
		depth int
		instr []bool
	)
	for _, r := range s {
		switch r {
		case 0x13:
			depth++
			instr = append(instr, true)
		case 0x14:
			if depth > 0 {
				instr[depth-1] = false
			}
		case 0x15:
			if depth > 0 {
				depth--
				instr = instr[:depth]
			}
		default:
			if depth == 0 || !instr[depth-1] {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

var (
	wordBinaryNoise = []*regexp.Regexp{
		regexp.MustCompile(`(?s)~!bjbj.*?uDhhCtyG`),
		regexp.MustCompile(`(?s)Root Entry.*?WordDocument`),
		regexp.MustCompile(`(?s)Microsoft Office Word.*?Normal\.dotm`),
	}
	nonPrintable = regexp.MustCompile(`[^\x20-\x7E\n\r\t]+`)
	alphaRun     = regexp.MustCompile(`[a-zA-Z]{3,}`)
	letterMarks  = []string{"Reference:", "Subject:", "Date:", "To:", "From:", "Dear", "Regards", "Sincerely"}
)

// salvageText decodes data under several encodings, keeps the most readable
// rendering and filters it down to lines that look like prose.
func salvageText(data []byte) string {
	decoders := []*encoding.Decoder{
		encoding.Nop.NewDecoder(),
		unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder(),
		unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder(),
		charmap.ISO8859_1.NewDecoder(),
	}

	var (
		best     string
		bestRead = -1
	)
	for _, d := range decoders {
		s, err := d.String(string(data))
		if err != nil {
			continue
		}
		if n := readable(s); n > bestRead {
			best, bestRead = s, n
		}
	}

	for _, re := range wordBinaryNoise {
		best = re.ReplaceAllString(best, "")
	}
	best = strings.ReplaceAll(best, "\r", "\n")
	best = nonPrintable.ReplaceAllString(best, " ")

	var kept []string
	for _, line := range strings.Split(best, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if meaningful(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func readable(s string) int {
	n := 0
	for _, r := range s {
		if (r >= 0x20 && r <= 0x7E) || r == '\n' || r == '\r' || r == '\t' {
			n++
		}
	}
	return n
}

func meaningful(line string) bool {
	if len(line) < 3 {
		return false
	}
	for _, m := range letterMarks {
		if strings.Contains(line, m) {
			return true
		}
	}
	return len(line) > 10 && alphaRun.MatchString(line)
}
