package options

import (
	"k8s.io/apimachinery/pkg/util/validation/field"
	"taglogger/pkg/generic"
	v1 "taglogger/pkg/v1"
)

func Validate(o *Options) []error {
	var errs []error
	if err := o.BaseOptions.ValidateAndApply(); err != nil {
		errs = append(errs, err)
	}
	for _, err := range validateOptions(o) {
		errs = append(errs, err)
	}
	return errs
}

func validateOptions(o *Options) field.ErrorList {
	allErrs := field.ErrorList{}
	devicesPath := field.NewPath("devices")
	if len(o.Devices) == 0 {
		allErrs = append(allErrs, field.Required(devicesPath, "at least one device must be configured"))
	}
	allErrs = append(allErrs, v1.ValidateDevices(o.Devices, generic.SupportedSchemes(), devicesPath)...)

	if o.TickPeriod.Duration <= 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("tickPeriod"), o.TickPeriod.Duration.String(), "must be positive"))
	}
	if o.RetryDelay.Duration <= 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("retryDelay"), o.RetryDelay.Duration.String(), "must be positive"))
	}
	if o.RequestTimeout.Duration <= 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("requestTimeout"), o.RequestTimeout.Duration.String(), "must be positive"))
	}
	if o.MQTT.QoS > 2 {
		allErrs = append(allErrs, field.NotSupported(field.NewPath("mqtt", "qos"), o.MQTT.QoS, []string{"0", "1", "2"}))
	}
	if (len(o.CertFile) == 0) != (len(o.KeyFile) == 0) {
		allErrs = append(allErrs, field.Invalid(field.NewPath("certFile"), o.CertFile, "certFile and keyFile must be set together"))
	}
	return allErrs
}
