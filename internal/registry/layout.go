package registry

import (
	"fmt"
	"path/filepath"

	"github.com/scrypster/reftrack/pkg/types"
)

// Layout maps content items to paths below a project root:
//
//	<root>/<kind>s/<element>/<task>/<releasetype>/<element>_<task>[_<descriptor>]_v<NNN>.<ext>
type Layout struct {
	Root string
}

// Path returns the file path of item.
func (l Layout) Path(item types.ContentItem) (string, error) {
	if err := validateItem(item); err != nil {
		return "", err
	}

	base := item.Element.Name + "_" + item.Task
	if item.Descriptor != "" {
		base += "_" + item.Descriptor
	}
	name := fmt.Sprintf("%s_v%03d%s", base, item.Version, extension(item.FileType))

	return filepath.Join(l.Root, string(item.Element.Kind)+"s", item.Element.Name, item.Task, item.ReleaseType, name), nil
}

// extension returns the file extension for a file type. Scenes are stored
// as YAML scene files.
func extension(fileType string) string {
	if fileType == types.FileTypeScene || fileType == "" {
		return ".yaml"
	}
	return "." + fileType
}

func validateItem(item types.ContentItem) error {
	switch {
	case item.Element.Name == "":
		return fmt.Errorf("%w: element name is required", ErrInvalidInput)
	case item.Element.Kind != types.KindAsset && item.Element.Kind != types.KindShot:
		return fmt.Errorf("%w: unknown element kind %q", ErrInvalidInput, item.Element.Kind)
	case item.Task == "":
		return fmt.Errorf("%w: task is required", ErrInvalidInput)
	case item.ReleaseType == "":
		return fmt.Errorf("%w: release type is required", ErrInvalidInput)
	case item.Version < 1:
		return fmt.Errorf("%w: version must be positive, got %d", ErrInvalidInput, item.Version)
	}
	return nil
}
