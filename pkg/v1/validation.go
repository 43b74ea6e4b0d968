package v1

import (
	"fmt"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"net/url"
	"path/filepath"
	"strings"
	"taglogger/pkg/runtime"
	"taglogger/pkg/utils/floatutil"
)

func validateDeviceName(name string) error {
	if len(name) > 256 {
		return fmt.Errorf("must be no more than 256 characters")
	}
	if strings.ContainsAny(name, "#+\x00") {
		return fmt.Errorf("must not contain '#', '+' or NUL")
	}
	return nil
}

// ValidateDevices checks the device list. supported lists the address schemes
// that have a session engine, nil accepts any.
func ValidateDevices(devices []*Device, supported []string, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	names := make(map[string]int, len(devices))
	files := make(map[string]int, len(devices))
	for i, d := range devices {
		idxPath := fldPath.Index(i)
		if d == nil {
			allErrs = append(allErrs, field.Required(idxPath, ""))
			continue
		}
		allErrs = append(allErrs, ValidateDevice(d, supported, idxPath)...)

		name := d.GetName()
		if j, ok := names[name]; ok && len(name) > 0 {
			allErrs = append(allErrs, field.Duplicate(idxPath.Child("name"), fmt.Sprintf("%s (device %d)", name, j)))
		} else {
			names[name] = i
		}
		if len(d.Filename) > 0 {
			file := filepath.Clean(d.Filename)
			if j, ok := files[file]; ok {
				allErrs = append(allErrs, field.Duplicate(idxPath.Child("filename"), fmt.Sprintf("%s (device %d)", d.Filename, j)))
			} else {
				files[file] = i
			}
		}
	}
	return allErrs
}

func ValidateDevice(d *Device, supported []string, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	if len(d.Name) > 0 {
		allErrs = append(allErrs, runtime.ValidateName(d.Name, fldPath.Child("name"), validateDeviceName)...)
	}

	urlPath := fldPath.Child("url")
	if len(d.URL) == 0 {
		allErrs = append(allErrs, field.Required(urlPath, ""))
	} else if u, err := url.Parse(d.URL); err != nil {
		allErrs = append(allErrs, field.Invalid(urlPath, d.URL, err.Error()))
	} else if len(u.Scheme) == 0 || len(u.Host) == 0 {
		allErrs = append(allErrs, field.Invalid(urlPath, d.URL, "must be scheme://host[:port]"))
	} else if supported != nil && !contains(supported, u.Scheme) {
		allErrs = append(allErrs, field.NotSupported(urlPath.Child("scheme"), u.Scheme, supported))
	}

	if len(d.Filename) == 0 {
		allErrs = append(allErrs, field.Required(fldPath.Child("filename"), ""))
	}

	tags := make(map[string]struct{}, len(d.Tags))
	for i, t := range d.Tags {
		tagPath := fldPath.Child("tags").Index(i)
		if t == nil {
			allErrs = append(allErrs, field.Required(tagPath, ""))
			continue
		}
		allErrs = append(allErrs, ValidateTag(t, tagPath)...)
		if _, ok := tags[t.Tag]; ok {
			allErrs = append(allErrs, field.Duplicate(tagPath.Child("tag"), t.Tag))
		}
		tags[t.Tag] = struct{}{}
	}
	return allErrs
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func ValidateTag(t *Tag, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	if len(strings.TrimSpace(t.Tag)) == 0 {
		allErrs = append(allErrs, field.Required(fldPath.Child("tag"), ""))
	}
	if len(t.FloatRes) > 0 {
		if _, err := floatutil.ParseResolution(t.FloatRes); err != nil {
			allErrs = append(allErrs, field.Invalid(fldPath.Child("floatres"), t.FloatRes, err.Error()))
		}
	}
	if _, err := t.PollInterval(); err != nil {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("interval"), t.Interval.String(), err.Error()))
	}
	return allErrs
}
