package drives

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"pepper/internal/constraint"
	"pepper/internal/logging"
	"pepper/internal/usercode"
)

// Built-in type names.
const (
	UsercodeName = "USERCODE"
	MetadataName = "METADATA"
	NoActionName = "NO_ACTION"
)

// MetadataFileName marks a metadata drive.
const MetadataFileName = "pepper2.json"

// DefaultTable returns the built-in types in priority order: usercode,
// metadata, then the no-action catch-all.
func DefaultTable(drivers usercode.Drivers) *Table {
	table, err := NewTable(UsercodeType(drivers), MetadataType(), NoActionType())
	if err != nil {
		// The built-in table is static; failing here is a programming error.
		panic(err)
	}
	return table
}

// UsercodeType matches drives holding any driver's entrypoint.
func UsercodeType(drivers usercode.Drivers) *Type {
	return &Type{
		Kind:           KindUsercode,
		Name:           UsercodeName,
		Constraint:     constraint.AnyFilePresent(drivers.Entrypoints()...),
		StartsUsercode: true,
		OnMount: func(h Host, d Drive) {
			logger := logging.ForDrive(logging.NewComponentLogger(h.Logger(), "usercode-drive"), d.ID, d.MountPath)
			driver, ok := drivers.ForPath(d.MountPath)
			if !ok {
				logging.WarnWithContext(logger, "usercode entrypoint vanished before start", "usercode_entrypoint_missing",
					logging.String(logging.FieldErrorHint, "re-insert the drive"),
					logging.String(logging.FieldImpact, "usercode not started"),
				)
				h.ReleaseUsercode(d)
				return
			}
			if err := h.AttachUsercode(d, driver); err != nil {
				logging.WarnWithContext(logger, "usercode not started", "usercode_attach_failed",
					logging.Error(err),
					logging.String("driver", driver.Name),
					logging.String(logging.FieldErrorHint, "check the usercode log file on the drive"),
					logging.String(logging.FieldImpact, "drive registered without running code"),
				)
				h.ReleaseUsercode(d)
			}
		},
		OnUnmount: func(h Host, d Drive) {
			h.DetachUsercode(d)
		},
	}
}

// MetadataType matches drives carrying a pepper2.json file.
func MetadataType() *Type {
	return &Type{
		Kind:       KindMetadata,
		Name:       MetadataName,
		Constraint: constraint.FilePresent(MetadataFileName),
		OnMount: func(h Host, d Drive) {
			logger := logging.ForDrive(logging.NewComponentLogger(h.Logger(), "metadata-drive"), d.ID, d.MountPath)
			keys, err := ReadMetadataKeys(d.MountPath)
			if err != nil {
				logging.WarnWithContext(logger, "unable to read drive metadata", "metadata_invalid",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check "+MetadataFileName+" holds a JSON object"),
					logging.String(logging.FieldImpact, "metadata ignored"),
				)
				return
			}
			logger.Info("metadata drive mounted",
				logging.String(logging.FieldEventType, "metadata_loaded"),
				logging.Any("keys", keys),
			)
		},
		OnUnmount: func(h Host, d Drive) {
			logging.ForDrive(logging.NewComponentLogger(h.Logger(), "metadata-drive"), d.ID, d.MountPath).
				Info("metadata drive removed", logging.String(logging.FieldEventType, "metadata_removed"))
		},
	}
}

// NoActionType is the catch-all. Its hooks do nothing.
func NoActionType() *Type {
	return &Type{
		Kind:       KindNoAction,
		Name:       NoActionName,
		Constraint: constraint.True(),
		CatchAll:   true,
	}
}

// ReadMetadataKeys parses the metadata file under dir and returns its
// top-level keys, sorted.
func ReadMetadataKeys(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("metadata is not a JSON object")
	}
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
