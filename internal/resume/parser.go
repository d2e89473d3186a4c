package resume

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"github.com/google/uuid"

	"jobhub/internal/errors"
)

// MaxUploadSize bounds an imported CV file.
const MaxUploadSize = 10 << 20

type Parser struct {
	uploadsDir string
}

type ParsedCV struct {
	Filename string
	FileType string
	FileSize int64
	FullText string
	Skills   []string
}

func NewParser(uploadsDir string) *Parser {
	return &Parser{uploadsDir: uploadsDir}
}

// ParseFile stores the upload under the uploads dir and extracts its text.
// PDF/DOCX/DOC/RTF/ODT go through docconv; TXT is read as is.
func (p *Parser) ParseFile(filename string, reader io.Reader) (*ParsedCV, error) {
	base := filepath.Base(filename)
	fileType := strings.ToLower(filepath.Ext(base))
	switch fileType {
	case ".pdf", ".docx", ".doc", ".rtf", ".odt", ".txt":
	default:
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "unsupported file type: %q", fileType)
	}

	if err := os.MkdirAll(p.uploadsDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create uploads dir")
	}
	// uploads of the same name from different users must not collide
	filePath := filepath.Join(p.uploadsDir, uuid.NewString()+"_"+base)

	file, err := os.Create(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "create file")
	}
	size, err := io.Copy(file, io.LimitReader(reader, MaxUploadSize+1))
	file.Close()
	if err != nil {
		return nil, errors.Wrap(err, "save file")
	}
	if size > MaxUploadSize {
		os.Remove(filePath)
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "file exceeds %d bytes", MaxUploadSize)
	}

	var text string
	if fileType == ".txt" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, errors.Wrap(err, "read text file")
		}
		text = string(content)
	} else {
		res, err := docconv.ConvertPath(filePath)
		if err != nil {
			return nil, errors.Wrap(err, "parse document")
		}
		text = res.Body
	}

	return &ParsedCV{
		Filename: base,
		FileType: fileType,
		FileSize: size,
		FullText: text,
		Skills:   ExtractSkills(text),
	}, nil
}

var skillKeywords = []string{
	"Go", "Golang", "Python", "Java", "JavaScript", "TypeScript", "C#", ".NET", "PHP",
	"React", "Vue", "Angular", "Node.js", "Docker", "Kubernetes",
	"PostgreSQL", "MySQL", "SQL Server", "MongoDB", "Redis", "RabbitMQ", "AWS", "Azure", "GCP",
	"GraphQL", "REST", "Microservices", "Git", "CI/CD", "Linux",
	"Machine Learning", "Data Science", "DevOps", "Figma", "Photoshop",
	"Excel", "Marketing", "SEO", "Kế toán", "Tiếng Anh",
}

// ExtractSkills does keyword matching against a fixed skill vocabulary.
// Short keywords must appear as whole words.
func ExtractSkills(text string) []string {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\n' || r == '\t' || r == '(' || r == ')' || r == '/' || r == '|'
	}) {
		words[strings.Trim(w, ".:")] = true
	}

	skills := []string{}
	for _, skill := range skillKeywords {
		k := strings.ToLower(skill)
		if len(k) <= 3 && !strings.ContainsAny(k, "./#") {
			if words[k] {
				skills = append(skills, skill)
			}
			continue
		}
		if strings.Contains(lower, k) {
			skills = append(skills, skill)
		}
	}
	return skills
}
