package derive

import (
	"math"
	"time"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

func scheduleError(schema *model.Schema, format string, args ...any) error {
	name := "Delivery Date"
	if f, ok := schema.FieldByTemplate(model.TemplateDeliveryDate); ok {
		name = f.Name
	}
	ve := &model.ValidationError{}
	ve.Add(name, format, args...)
	return ve
}

func productionDays(v model.Value) int {
	return int(math.Round(*v.Number))
}

func daysBetween(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Hours() / 24))
}

// CheckSchedule rejects a write the schedule rule would refuse, before
// anything is stored: all three schedule fields changed together but
// disagreeing, or a delivery date landing before the start date.
func CheckSchedule(schema *model.Schema, before *model.Resource, values []model.FieldValue) error {
	if !schema.Implements(model.TemplateStartDate, model.TemplateProductionDays, model.TemplateDeliveryDate) {
		return nil
	}
	type slot struct {
		field   *model.Field
		value   model.Value
		changed bool
	}
	slots := make(map[string]*slot, 3)
	for _, t := range []string{model.TemplateStartDate, model.TemplateProductionDays, model.TemplateDeliveryDate} {
		f, _ := schema.FieldByTemplate(t)
		slots[t] = &slot{field: f, value: before.Value(f.ID)}
	}
	for _, v := range values {
		for _, s := range slots {
			if s.field.ID == v.FieldID && !s.value.Equal(s.field.Type, v.Value) {
				s.value, s.changed = v.Value, true
			}
		}
	}
	start, days, delivery := slots[model.TemplateStartDate], slots[model.TemplateProductionDays], slots[model.TemplateDeliveryDate]
	has := func(s *slot) bool { return !s.value.IsEmpty(s.field.Type) }

	if start.changed && days.changed && delivery.changed {
		if has(start) && has(days) && has(delivery) &&
			!start.value.Date.AddDate(0, 0, productionDays(days.value)).Equal(*delivery.value.Date) {
			return scheduleError(schema, "start date plus %d production days does not match the delivery date", productionDays(days.value))
		}
		return nil
	}
	recomputesDays := (delivery.changed && has(delivery) && has(start)) ||
		((start.changed || days.changed) && has(start) && !has(days) && has(delivery))
	if recomputesDays && daysBetween(*start.value.Date, *delivery.value.Date) < 0 {
		return scheduleError(schema, "delivery date is before the start date")
	}
	return nil
}
