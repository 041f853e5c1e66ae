// Package ghinstall installs GitHub release artifacts: it downloads either a
// repository source archive or a pattern-matched binary asset for a resolved
// release tag and places it under a target directory.
package ghinstall

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/getsavvyinc/ghinstall/archive"
	"github.com/getsavvyinc/ghinstall/fetch"
	"github.com/getsavvyinc/ghinstall/release"
)

// DefaultDownloadBase is the host serving source archives and release assets.
const DefaultDownloadBase = "https://github.com"

// ReleaseType selects which artifact of a release gets installed.
type ReleaseType string

const (
	// ReleaseTypeSource installs the auto-generated source archive.
	ReleaseTypeSource ReleaseType = "source"
	// ReleaseTypeBinary installs an uploaded release asset.
	ReleaseTypeBinary ReleaseType = "binary"
)

// ParseReleaseType maps the CLI's release-type string onto a ReleaseType.
func ParseReleaseType(s string) (ReleaseType, error) {
	switch ReleaseType(s) {
	case ReleaseTypeSource, ReleaseTypeBinary:
		return ReleaseType(s), nil
	default:
		return "", fmt.Errorf("unknown release type: %q (want %q or %q)", s, ReleaseTypeSource, ReleaseTypeBinary)
	}
}

// InstallRequest fully determines one install. It is constructed once from
// validated input and passed by value.
type InstallRequest struct {
	Owner      string
	Repo       string
	ReleaseTag string

	ReleaseType ReleaseType

	// DownloadFilename names the downloaded source archive. In binary mode it
	// is instead compiled as a regular expression and matched against the
	// release's asset names.
	DownloadFilename string

	DownloadPath string
	ExtractPath  string
	InstallPath  string

	// AssetsFromTag lists assets from the release published under ReleaseTag.
	// When false, binary installs always target the latest release's assets,
	// even if an explicit tag was supplied.
	AssetsFromTag bool
}

// AssetNotFoundError reports a binary-mode pattern that matched none of the
// release's assets. Available carries every asset name for diagnostics.
type AssetNotFoundError struct {
	Pattern   string
	Available []string
}

func (e *AssetNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("no asset matches %q: release has no assets", e.Pattern)
	}
	return fmt.Sprintf("no asset matches %q, available assets: %s", e.Pattern, strings.Join(e.Available, ", "))
}

// Installer downloads and installs a release artifact.
type Installer interface {
	Install(ctx context.Context, req InstallRequest) error
}

type installer struct {
	fetcher       fetch.Fetcher
	extractor     archive.Extractor
	downloadBase  string
	releaseGetter func(owner, repo string) release.Getter
}

var _ Installer = (*installer)(nil)

type Opt func(*installer)

func WithFetcher(f fetch.Fetcher) Opt {
	return func(i *installer) {
		i.fetcher = f
	}
}

func WithExtractor(e archive.Extractor) Opt {
	return func(i *installer) {
		i.extractor = e
	}
}

// WithDownloadBase overrides the artifact host. Used by tests.
func WithDownloadBase(base string) Opt {
	return func(i *installer) {
		i.downloadBase = strings.TrimRight(base, "/")
	}
}

// WithReleaseGetter overrides how the installer obtains release metadata for
// an owner/repo when listing binary assets.
func WithReleaseGetter(fn func(owner, repo string) release.Getter) Opt {
	return func(i *installer) {
		i.releaseGetter = fn
	}
}

func NewInstaller(opts ...Opt) Installer {
	i := &installer{
		fetcher:      fetch.NewFetcher(),
		extractor:    archive.NewZipExtractor(),
		downloadBase: DefaultDownloadBase,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.releaseGetter == nil {
		fetcher := i.fetcher
		i.releaseGetter = func(owner, repo string) release.Getter {
			return release.NewGetter(owner, repo, release.WithFetcher(fetcher))
		}
	}
	return i
}

func (i *installer) Install(ctx context.Context, req InstallRequest) error {
	switch req.ReleaseType {
	case ReleaseTypeBinary:
		return i.installBinary(ctx, req)
	default:
		return i.installSource(ctx, req)
	}
}

// installSource downloads the source archive for the release tag. The archive
// is always a zip, regardless of the configured download filename.
func (i *installer) installSource(ctx context.Context, req InstallRequest) error {
	url := fmt.Sprintf("%s/%s/%s/archive/%s.zip", i.downloadBase, req.Owner, req.Repo, req.ReleaseTag)
	archivePath := filepath.Join(req.DownloadPath, req.DownloadFilename)

	if err := i.fetcher.Fetch(ctx, url, archivePath); err != nil {
		return fmt.Errorf("download source archive: %w", err)
	}

	return i.extractAndRelocate(req, archivePath)
}

func (i *installer) installBinary(ctx context.Context, req InstallRequest) error {
	// Compile before any network call so a bad pattern fails fast.
	pattern, err := regexp.Compile(req.DownloadFilename)
	if err != nil {
		return fmt.Errorf("invalid asset pattern %q: %w", req.DownloadFilename, err)
	}

	info, err := i.listAssets(ctx, req)
	if err != nil {
		return fmt.Errorf("list release assets: %w", err)
	}

	asset, ok := matchAsset(info.Assets, pattern)
	if !ok {
		return &AssetNotFoundError{
			Pattern:   req.DownloadFilename,
			Available: assetNames(info.Assets),
		}
	}

	url := asset.BrowserDownloadURL
	if url == "" {
		url = fmt.Sprintf("%s/%s/%s/releases/download/%s/%s", i.downloadBase, req.Owner, req.Repo, info.TagName, asset.Name)
	}

	downloadPath := filepath.Join(req.DownloadPath, asset.Name)
	if err := i.fetcher.Fetch(ctx, url, downloadPath); err != nil {
		return fmt.Errorf("download asset %s: %w", asset.Name, err)
	}

	// Post-processing branches on the matched asset's actual extension, not
	// the configured pattern: zip assets are unpacked, everything else is
	// installed as an executable.
	if strings.EqualFold(filepath.Ext(asset.Name), ".zip") {
		return i.extractAndRelocate(req, downloadPath)
	}
	return moveExecutable(downloadPath, filepath.Join(req.InstallPath, asset.Name))
}

func (i *installer) listAssets(ctx context.Context, req InstallRequest) (*release.Info, error) {
	getter := i.releaseGetter(req.Owner, req.Repo)
	if req.AssetsFromTag && req.ReleaseTag != "" {
		return getter.ReleaseByTag(ctx, req.ReleaseTag)
	}
	return getter.LatestRelease(ctx)
}

func matchAsset(assets []release.Asset, pattern *regexp.Regexp) (release.Asset, bool) {
	for _, asset := range assets {
		if pattern.MatchString(asset.Name) {
			return asset, true
		}
	}
	return release.Asset{}, false
}

func assetNames(assets []release.Asset) []string {
	names := make([]string, 0, len(assets))
	for _, asset := range assets {
		names = append(names, asset.Name)
	}
	return names
}

// extractAndRelocate unpacks archivePath into the extract path and moves the
// contents of the archive's single top-level directory into the install path.
// The downloaded archive and the extract path are removed whether or not the
// relocation succeeded.
func (i *installer) extractAndRelocate(req InstallRequest, archivePath string) (err error) {
	defer func() {
		if rmErr := os.Remove(archivePath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("remove downloaded archive: %w", rmErr)
		}
		if rmErr := os.RemoveAll(req.ExtractPath); rmErr != nil && err == nil {
			err = fmt.Errorf("remove extract path: %w", rmErr)
		}
	}()

	// Stale state from earlier runs is cleared first.
	if err := os.RemoveAll(req.ExtractPath); err != nil {
		return fmt.Errorf("clear extract path: %w", err)
	}

	if err := i.extractor.Extract(archivePath, req.ExtractPath); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	top, err := singleTopLevelDir(req.ExtractPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(req.InstallPath, 0755); err != nil {
		return fmt.Errorf("create install path: %w", err)
	}

	entries, err := os.ReadDir(top)
	if err != nil {
		return fmt.Errorf("read extracted dir: %w", err)
	}
	for _, entry := range entries {
		src := filepath.Join(top, entry.Name())
		dst := filepath.Join(req.InstallPath, entry.Name())
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("replace %s: %w", dst, err)
		}
		if err := moveEntry(src, dst); err != nil {
			return fmt.Errorf("relocate %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// singleTopLevelDir returns the path of the extract dir's only entry, which
// must be a directory. Source archives wrap the repository tree in one
// directory; anything else is rejected rather than relocated blindly.
func singleTopLevelDir(extractPath string) (string, error) {
	entries, err := os.ReadDir(extractPath)
	if err != nil {
		return "", fmt.Errorf("read extract path: %w", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", fmt.Errorf("archive must contain exactly one top-level directory, found %d entries", len(entries))
	}
	return filepath.Join(extractPath, entries[0].Name()), nil
}

func moveExecutable(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create install path: %w", err)
	}
	if err := moveEntry(srcPath, dstPath); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}
	if err := os.Chmod(dstPath, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}

// moveEntry renames src to dst, falling back to copy-and-delete when the
// rename crosses filesystems.
func moveEntry(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := copyTree(src, dst); err != nil {
			return err
		}
	} else {
		if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return os.RemoveAll(src)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
