package gemini

// extractionSchema constrains the model's JSON output. Mirrors the shape of
// models.ExtractionResult.
const extractionSchema = `{
  "type": "OBJECT",
  "properties": {
    "doc_type": {
      "type": "STRING",
      "enum": ["invoice", "purchase_order", "receipt", "packing_list", "bill_of_lading", "contract", "statement", "unknown"]
    },
    "summary": {"type": "STRING"},
    "language": {"type": "STRING", "nullable": true},
    "fields": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "key": {"type": "STRING"},
          "value": {"type": "STRING"},
          "confidence": {"type": "NUMBER"},
          "evidence": {
            "type": "OBJECT",
            "properties": {
              "page": {"type": "NUMBER", "nullable": true},
              "quote": {"type": "STRING"}
            }
          }
        }
      }
    },
    "tables": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "name": {"type": "STRING"},
          "confidence": {"type": "NUMBER"},
          "columns": {"type": "ARRAY", "items": {"type": "STRING"}},
          "rows": {"type": "ARRAY", "items": {"type": "ARRAY", "items": {"type": "STRING"}}},
          "evidence": {
            "type": "OBJECT",
            "properties": {
              "page": {"type": "NUMBER", "nullable": true},
              "quote": {"type": "STRING"}
            }
          }
        }
      }
    },
    "specialized": {
      "type": "OBJECT",
      "properties": {
        "invoice": {
          "type": "OBJECT",
          "nullable": true,
          "properties": {
            "supplier_name": {"type": "STRING", "nullable": true},
            "invoice_number": {"type": "STRING", "nullable": true},
            "invoice_date": {"type": "STRING", "nullable": true},
            "due_date": {"type": "STRING", "nullable": true},
            "currency": {"type": "STRING", "nullable": true},
            "subtotal": {"type": "NUMBER", "nullable": true},
            "tax": {"type": "NUMBER", "nullable": true},
            "shipping": {"type": "NUMBER", "nullable": true},
            "total": {"type": "NUMBER", "nullable": true},
            "po_number": {"type": "STRING", "nullable": true},
            "gl_code_suggestion": {"type": "STRING", "nullable": true},
            "payment_terms": {"type": "STRING", "nullable": true},
            "has_discount_opportunity": {"type": "BOOLEAN"}
          }
        },
        "purchase_order": {
          "type": "OBJECT",
          "nullable": true,
          "properties": {
            "buyer_name": {"type": "STRING", "nullable": true},
            "supplier_name": {"type": "STRING", "nullable": true},
            "po_number": {"type": "STRING", "nullable": true},
            "po_date": {"type": "STRING", "nullable": true},
            "currency": {"type": "STRING", "nullable": true},
            "total": {"type": "NUMBER", "nullable": true}
          }
        }
      }
    },
    "warnings": {"type": "ARRAY", "items": {"type": "STRING"}}
  }
}`
