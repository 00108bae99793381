package store

import "time"

// ArtifactKind distinguishes JAR archives from loose class files.
type ArtifactKind string

const (
	KindJar   ArtifactKind = "jar"
	KindClass ArtifactKind = "class"
)

// Service is a deployed process instance on a host, with its own lib/
// and classes/ directories. Empty credentials mean the paths are local.
type Service struct {
	ID                      int64
	ServiceName             string
	Environment             string
	Host                    string
	Port                    int
	Username                string
	Password                string
	ServerBasePath          string
	JarPath                 string
	ClassesPath             string
	JarDecompileOutputDir   string
	ClassDecompileOutputDir string
	Description             string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Local reports whether the service's paths live on the local filesystem
// rather than behind SSH.
func (s *Service) Local() bool {
	return s.Username == "" && s.Password == ""
}

// JarFile is one observation of a JAR archive on one service.
type JarFile struct {
	ID            int64
	ServiceID     int64
	JarName       string
	FileSize      int64
	LastModified  time.Time
	IsThirdParty  bool
	FilePath      string
	DecompilePath string
	VersionNo     int64 // 0 until assigned
	LastVersionNo int64
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ClassFile is one observation of a loose compiled class on one service.
type ClassFile struct {
	ID              int64
	ServiceID       int64
	ClassFullName   string
	FileSize        int64
	LastModified    time.Time
	FilePath        string
	DecompilePath   string
	SourceVersionID int64 // 0 when unset
	VersionNo       int64
	LastVersionNo   int64
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SourceIdentity is the fully-qualified class name, independent of which
// JAR or which version carries it.
type SourceIdentity struct {
	ID            int64
	ClassFullName string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SourceVersion is one concrete content blob for a SourceIdentity.
// Version holds the space-joined, sorted set of version tokens
// ("jar:foo.jar@2 class:com.x.Y@1").
type SourceVersion struct {
	ID               int64
	SourceIdentityID int64
	Version          string
	FilePath         string
	FileContent      string
	FileSize         int64
	FileHash         string
	LineCount        int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JarSourceLink says a concrete JAR row contains a concrete source version.
type JarSourceLink struct {
	ID              int64
	JarFileID       int64
	SourceVersionID int64
	CreatedAt       time.Time
}

// DiffSummary is the aggregate result of diffing two versions of one artifact.
type DiffSummary struct {
	ID           int64
	ArtifactKind ArtifactKind
	ArtifactName string
	FromVersion  int64
	ToVersion    int64
	Insertions   int
	Deletions    int
	FilesChanged int
	CreatedAt    time.Time
}

// DiffFile is one per-file unified diff belonging to a DiffSummary.
type DiffFile struct {
	ID               int64
	DiffCacheID      int64
	FilePath         string
	ChangeType       string // added, deleted, modified
	Additions        int
	Deletions        int
	ChangePercentage int
	UnifiedText      string
}
