package scanning

const transcriptionPrompt = `Transcribe all text printed on this receipt exactly as it appears.

Rules:
- Keep the original line breaks; one printed line per output line
- Keep prices, dates and punctuation exactly as printed (do not reformat 12,50 as 12.50)
- Keep the original language; do not translate
- Do not summarize, explain, or add anything that is not printed
- If no text is readable, answer ` + noTextMarker
