package runtime

import (
	"k8s.io/apimachinery/pkg/util/validation/field"
)

type ValidateNameFunc func(name string) error

func ValidateName(name string, fldPath *field.Path, nameFn ValidateNameFunc) field.ErrorList {
	var allErrs field.ErrorList
	if len(name) == 0 {
		allErrs = append(allErrs, field.Required(fldPath, ""))
	} else if err := nameFn(name); err != nil {
		allErrs = append(allErrs, field.Invalid(fldPath, name, err.Error()))
	}
	return allErrs
}
