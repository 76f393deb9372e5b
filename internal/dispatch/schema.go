package dispatch

// FunctionSchema is the JSON-schema description of one function as
// advertised to the AI leg in the session configuration message.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Schemas returns the function declarations the model may call. Required
// fields here must match what the dispatcher validates.
func Schemas() []FunctionSchema {
	return []FunctionSchema{
		{
			Name:        FuncCaptureLead,
			Description: "Save the caller's contact details and reason for calling so the business can follow up.",
			Parameters: objectSchema(map[string]any{
				"name":    prop("string", "Caller's full name"),
				"phone":   prop("string", "Callback phone number in E.164 format"),
				"reason":  prop("string", "Why the caller got in touch"),
				"email":   prop("string", "Caller's email address"),
				"urgency": enumProp("How urgent the request is", "low", "normal", "high", "emergency"),
			}, "name", "phone", "reason"),
		},
		{
			Name:        FuncBookAppointment,
			Description: "Book an appointment for the caller on the business calendar.",
			Parameters: objectSchema(map[string]any{
				"date":     prop("string", "Appointment date, YYYY-MM-DD"),
				"time":     prop("string", "Appointment start time, 24-hour HH:MM"),
				"purpose":  prop("string", "What the appointment is for"),
				"duration": prop("integer", "Length in minutes, defaults to the business standard"),
			}, "date", "time", "purpose"),
		},
		{
			Name:        FuncCheckAvailability,
			Description: "List open appointment slots for a given date.",
			Parameters: objectSchema(map[string]any{
				"date": prop("string", "Date to check, YYYY-MM-DD"),
			}, "date"),
		},
		{
			Name:        FuncTransferCall,
			Description: "Transfer the caller to a human when they ask for one or the request is beyond the assistant.",
			Parameters: objectSchema(map[string]any{
				"reason": prop("string", "Why the call is being transferred"),
				"target": prop("string", "Specific number to transfer to, if the caller asked for one"),
			}, "reason"),
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func enumProp(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}
