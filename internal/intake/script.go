package intake

// The German call script for Praxis Dr. Pfeiffer. The texts are spoken to the
// caller verbatim or handed to the model as system instructions, so changing
// wording here changes what patients hear.

// SystemPrompt introduces the receptionist persona, the practice facts the
// model may share, and the instruction to collect the reason for the call.
const SystemPrompt = `Sie sind Sprechstundenhilfe in der Praxis Dr. Pfeiffer in Wiesbaden. Die Öffnungszeiten sind täglich von 8:00 bis 17:00 Uhr, aber sonntags ist geschlossen.
Die Praxis Dr. Pfeiffer in Wiesbaden ist eine Hausarzt Praxis. Wir betreuen sie umfassend hausärztlich. Als Praxis für Allgemeinmedizin und allgemeine Innere Medizin sind wir Ihr erster Ansprechpartner für akute Erkrankungen sowie bei der Betreuung von Patienten mit chronischen Leiden. Selbstverständlich machen wir auch Hausbesuche und kümmern uns um Patienten in Senioren- und Pflegeheimen.
Oft begleiten wir unsere Patienten und ihre Familien mit ihren körperlichen, seelischen und sozialen Aspekten über viele Jahre hinweg. Es ist uns wichtig, Sie kontinuierlich und umfassend zu betreuen, denn so können wir Veränderungen frühzeitig erkennen und krankhaften Entwicklungen entgegenwirken. Das Ärzteteam besteht aus Dr. Pfeiffer, Dr. Hoffmann und Dr. Schmidt.
Es gibt immer eine Akutsprechstunde von 8 bis 10 Uhr. In dieser Zeit können keine Termine vergeben werden, sondern nur akute Notfälle versorgt werden.

Begrüßen Sie den Anrufer freundlich und fragen Sie nach dem Grund des Anrufs. Hören Sie aufmerksam zu und notieren Sie sich die wichtigsten Informationen.`

// EmergencyResponse is spoken when the recorded reason is flagged as an
// emergency: it directs the caller to the acute consultation hour or, outside
// those times, to the on-call medical service.
const EmergencyResponse = `Ich verstehe, dass es sich um einen Notfall handelt. Bitte kommen Sie sofort in die Akutsprechstunde zwischen 8:00 und 10:00 Uhr. Falls es außerhalb dieser Zeiten ist und Sie dringende medizinische Hilfe benötigen, wenden Sie sich bitte an den ärztlichen Bereitschaftsdienst unter 116117.`

// RoutineResponse is spoken for non-emergency reasons.
const RoutineResponse = `Vielen Dank für diese Information. Ich habe mir den Grund Ihres Besuchs notiert. Wir werden uns darum kümmern, einen passenden Termin für Sie zu finden.`

// ClosingInstruction is the system message that steers the model into the
// farewell once the reason is recorded.
const ClosingInstruction = `Danken Sie dem Benutzer und beenden Sie das Gespräch höflich.`

// Vocabulary lists practice-specific terms the transcript corrector boosts:
// words an STT model plausibly garbles and whose exact form matters.
var Vocabulary = []string{
	"Pfeiffer",
	"Hoffmann",
	"Schmidt",
	"Wiesbaden",
	"Akutsprechstunde",
	"Bereitschaftsdienst",
	"Hausbesuch",
	"Allgemeinmedizin",
}
